// Package mbox streams messages out of MBOX archives (Google Takeout / Vault
// exports of the orders mailbox).
//
// The reader yields decoded headers, first text and first HTML body, and
// attachment metadata per message. Content is handed to callers verbatim; no
// reinterpretation happens here. Multipart trees are walked iteratively with
// an explicit stack so malformed nesting cannot blow the call stack.
package mbox

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"strings"
	"time"
)

// Attachment describes one attachment without materializing its content.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int
}

// Message is one parsed archive message.
type Message struct {
	ID      string
	Subject string
	Sender  string
	To      string
	Date    time.Time

	BodyText string
	BodyHTML string

	Attachments []Attachment
	Headers     map[string]string
}

// Reader streams messages from an MBOX file, one at a time.
type Reader struct {
	f  *os.File
	br *bufio.Reader

	// pending holds the separator line of the next message, already
	// consumed while scanning for the previous message's end.
	started bool
}

// Open opens an MBOX archive for streaming. Close must be called when done.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	return &Reader{f: f, br: bufio.NewReaderSize(f, 256<<10)}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// Next returns the next message, or io.EOF when the archive is exhausted.
// Messages that fail to parse are returned as an error for that message only;
// the reader stays positioned to continue with the following one.
func (r *Reader) Next() (*Message, error) {
	raw, err := r.nextRaw()
	if err != nil {
		return nil, err
	}
	m, perr := Parse(raw)
	if perr != nil {
		return nil, fmt.Errorf("parse message: %w", perr)
	}
	return m, nil
}

// nextRaw accumulates lines until the next "From " separator or EOF.
func (r *Reader) nextRaw() ([]byte, error) {
	var buf bytes.Buffer
	seen := false

	for {
		line, err := r.br.ReadBytes('\n')
		if len(line) > 0 {
			if bytes.HasPrefix(line, []byte("From ")) {
				if seen {
					// Separator of the following message: rewind it.
					if uerr := r.unread(line); uerr != nil {
						return nil, uerr
					}
					return buf.Bytes(), nil
				}
				seen = true
				continue // drop the separator itself
			}
			if seen {
				// mboxrd quoting: ">From " at line start encodes "From ".
				if bytes.HasPrefix(line, []byte(">From ")) {
					line = line[1:]
				}
				buf.Write(line)
			}
		}
		if err == io.EOF {
			if seen && buf.Len() > 0 {
				return buf.Bytes(), nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
	}
}

func (r *Reader) unread(line []byte) error {
	// bufio cannot unread a whole line; seek the file back instead.
	off := int64(len(line)) + int64(r.br.Buffered())
	if _, err := r.f.Seek(-off, io.SeekCurrent); err != nil {
		return err
	}
	r.br.Reset(r.f)
	return nil
}

// ReadAll drains the archive. Per-message parse failures are collected, not
// fatal; the error count mirrors the engine's source-level isolation rule.
func (r *Reader) ReadAll() (msgs []*Message, parseErrors []error, err error) {
	for {
		m, nerr := r.Next()
		if nerr == io.EOF {
			return msgs, parseErrors, nil
		}
		if nerr != nil {
			parseErrors = append(parseErrors, nerr)
			continue
		}
		msgs = append(msgs, m)
	}
}

// Parse decodes one raw RFC 822 message.
func Parse(raw []byte) (*Message, error) {
	mm, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	dec := new(mime.WordDecoder)
	decodeHdr := func(v string) string {
		if d, err := dec.DecodeHeader(v); err == nil {
			return d
		}
		return v
	}

	out := &Message{
		ID:      strings.Trim(mm.Header.Get("Message-ID"), "<>"),
		Subject: decodeHdr(mm.Header.Get("Subject")),
		Sender:  decodeHdr(mm.Header.Get("From")),
		To:      decodeHdr(mm.Header.Get("To")),
		Headers: make(map[string]string, len(mm.Header)),
	}
	for k, vs := range mm.Header {
		if len(vs) > 0 {
			out.Headers[k] = vs[0]
		}
	}
	if d, err := mm.Header.Date(); err == nil {
		out.Date = d
	}

	walkParts(textprotoHeader(mm.Header), mm.Body, out)
	return out, nil
}

// partHeader is the subset of header access the walker needs, satisfied by
// both mail.Header and multipart part headers.
type partHeader interface {
	Get(key string) string
}

type headerFunc func(key string) string

func (f headerFunc) Get(key string) string { return f(key) }

func textprotoHeader(h mail.Header) partHeader {
	return headerFunc(func(key string) string { return h.Get(key) })
}

type stackItem struct {
	header partHeader
	body   io.Reader
}

// walkParts traverses the part tree depth-first with an explicit stack,
// collecting the first text body, the first HTML body, and attachment
// metadata.
func walkParts(rootHeader partHeader, rootBody io.Reader, out *Message) {
	stack := []stackItem{{header: rootHeader, body: rootBody}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ctype := item.header.Get("Content-Type")
		mediaType, params, err := mime.ParseMediaType(ctype)
		if err != nil {
			mediaType = "text/plain"
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			boundary := params["boundary"]
			if boundary == "" {
				continue
			}
			mr := multipart.NewReader(item.body, boundary)

			// Children are pushed in reverse so the walk stays depth-first
			// in document order. Each part's content must be drained before
			// the next part is read, so buffer them now.
			var children []stackItem
			for {
				p, err := mr.NextPart()
				if err != nil {
					break
				}
				var body bytes.Buffer
				if _, err := io.Copy(&body, p); err != nil {
					break
				}
				hdr := p.Header
				children = append(children, stackItem{
					header: headerFunc(func(key string) string { return hdr.Get(key) }),
					body:   bytes.NewReader(body.Bytes()),
				})
			}
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
			continue
		}

		disp, dispParams, _ := mime.ParseMediaType(item.header.Get("Content-Disposition"))
		filename := dispParams["filename"]
		if filename == "" {
			filename = params["name"]
		}

		content, _ := io.ReadAll(decodeTransfer(item.body, item.header.Get("Content-Transfer-Encoding")))

		switch {
		case disp == "attachment" || filename != "":
			out.Attachments = append(out.Attachments, Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Size:        len(content),
			})
		case mediaType == "text/plain" && out.BodyText == "":
			out.BodyText = string(content)
		case mediaType == "text/html" && out.BodyHTML == "":
			out.BodyHTML = string(content)
		}
	}
}

// decodeTransfer unwraps base64 / quoted-printable transfer encodings.
// Unknown encodings pass through untouched.
func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newLineStripper(r))
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

// lineStripper removes CR/LF so base64 decoding sees a continuous stream.
type lineStripper struct {
	r io.Reader
}

func newLineStripper(r io.Reader) io.Reader { return &lineStripper{r: r} }

func (ls *lineStripper) Read(p []byte) (int, error) {
	buf := make([]byte, len(p))
	n, err := ls.r.Read(buf)
	out := 0
	for _, b := range buf[:n] {
		if b == '\r' || b == '\n' {
			continue
		}
		p[out] = b
		out++
	}
	if out == 0 && err == nil && n > 0 {
		// The chunk was all line breaks; report progress as zero bytes but
		// no error so the caller retries.
		return 0, nil
	}
	return out, err
}
