package mbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeMbox(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.mbox")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const twoMessageArchive = "From orders@crown.example Mon Jan 12 09:00:00 2026\n" +
	"From: Crown Orders <orders@crown.example>\n" +
	"To: production@mezza.example\n" +
	"Subject: Weekly order\n" +
	"Date: Mon, 12 Jan 2026 09:00:00 -0800\n" +
	"Message-ID: <abc123@crown.example>\n" +
	"\n" +
	"12 cases hummus.\n" +
	">From the Monday list.\n" +
	"\n" +
	"From pcc@pcc.example Tue Jan 13 09:00:00 2026\n" +
	"From: PCC <pcc@pcc.example>\n" +
	"Subject: =?utf-8?q?Caf=C3=A9_order?=\n" +
	"\n" +
	"2 each baba.\n"

func TestReaderSplitsOnSeparators(t *testing.T) {
	r, err := Open(writeMbox(t, twoMessageArchive))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	msgs, parseErrors, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(parseErrors) != 0 {
		t.Fatalf("parse errors: %v", parseErrors)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}

	m := msgs[0]
	if m.ID != "abc123@crown.example" {
		t.Errorf("id = %q", m.ID)
	}
	if m.Subject != "Weekly order" || m.Sender != "Crown Orders <orders@crown.example>" {
		t.Errorf("headers = %q / %q", m.Subject, m.Sender)
	}
	if m.To != "production@mezza.example" {
		t.Errorf("to = %q", m.To)
	}
	want := time.Date(2026, 1, 12, 9, 0, 0, 0, time.FixedZone("", -8*3600))
	if !m.Date.Equal(want) {
		t.Errorf("date = %v, want %v", m.Date, want)
	}

	// mboxrd quoting: a body line starting ">From " decodes to "From ".
	if !strings.Contains(m.BodyText, "\nFrom the Monday list.") {
		t.Errorf("body = %q, want unquoted From line", m.BodyText)
	}

	if got := msgs[1].Subject; got != "Café order" {
		t.Errorf("decoded subject = %q", got)
	}
}

func TestReadAllCollectsPerMessageParseErrors(t *testing.T) {
	archive := twoMessageArchive +
		"From broken@example.com Wed Jan 14 09:00:00 2026\n" +
		"this line is not a header\n" +
		"\n" +
		"lost body\n"

	r, err := Open(writeMbox(t, archive))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	msgs, parseErrors, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want the two parseable ones", len(msgs))
	}
	if len(parseErrors) != 1 {
		t.Fatalf("parse errors = %v, want 1", parseErrors)
	}
}

func TestParseMultipartTree(t *testing.T) {
	raw := "Content-Type: multipart/mixed; boundary=\"outer\"\n" +
		"Subject: Order with attachment\n" +
		"\n" +
		"--outer\n" +
		"Content-Type: multipart/alternative; boundary=\"inner\"\n" +
		"\n" +
		"--inner\n" +
		"Content-Type: text/plain; charset=utf-8\n" +
		"\n" +
		"plain body\n" +
		"--inner\n" +
		"Content-Type: text/html; charset=utf-8\n" +
		"\n" +
		"<p>html body</p>\n" +
		"--inner--\n" +
		"--outer\n" +
		"Content-Type: application/pdf; name=\"order.pdf\"\n" +
		"Content-Disposition: attachment; filename=\"order.pdf\"\n" +
		"Content-Transfer-Encoding: base64\n" +
		"\n" +
		"QUJD\n" +
		"--outer--\n"

	m, err := Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}

	if got := strings.TrimSpace(m.BodyText); got != "plain body" {
		t.Errorf("text = %q", got)
	}
	if got := strings.TrimSpace(m.BodyHTML); got != "<p>html body</p>" {
		t.Errorf("html = %q", got)
	}
	if len(m.Attachments) != 1 {
		t.Fatalf("attachments = %+v", m.Attachments)
	}
	a := m.Attachments[0]
	if a.Filename != "order.pdf" || a.ContentType != "application/pdf" {
		t.Errorf("attachment = %+v", a)
	}
	// "QUJD" decodes to the 3 bytes "ABC".
	if a.Size != 3 {
		t.Errorf("size = %d, want 3", a.Size)
	}
}

func TestParseFirstTextPartWins(t *testing.T) {
	raw := "Content-Type: multipart/mixed; boundary=\"b\"\n" +
		"\n" +
		"--b\n" +
		"Content-Type: text/plain\n" +
		"\n" +
		"first\n" +
		"--b\n" +
		"Content-Type: text/plain\n" +
		"\n" +
		"second\n" +
		"--b--\n"

	m, err := Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(m.BodyText); got != "first" {
		t.Errorf("text = %q, want first part", got)
	}
}

func TestParseQuotedPrintableBody(t *testing.T) {
	raw := "Content-Type: text/plain; charset=utf-8\n" +
		"Content-Transfer-Encoding: quoted-printable\n" +
		"\n" +
		"Caf=C3=A9=20order\n"

	m, err := Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(m.BodyText); got != "Café order" {
		t.Errorf("text = %q", got)
	}
}

func TestParseMissingHeadersFails(t *testing.T) {
	if _, err := Parse([]byte("not a header line\n\nbody\n")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<html><head><title>x</title></head><body>
<script>var ignored = 1;</script>
<p>Monday order</p>
<div>12 cases HUMMUS</div>


<p>Thanks</p>
</body></html>`

	got := HTMLToText(html)
	for _, want := range []string{"Monday order", "12 cases HUMMUS", "Thanks"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "ignored") {
		t.Errorf("script content leaked: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank runs not collapsed: %q", got)
	}
}

func TestBodyPrefersTextOverHTML(t *testing.T) {
	m := &Message{BodyText: "plain", BodyHTML: "<p>html</p>"}
	if got := m.Body(); got != "plain" {
		t.Errorf("body = %q", got)
	}

	m = &Message{BodyHTML: "<p>html only</p>"}
	if got := m.Body(); got != "html only" {
		t.Errorf("body = %q", got)
	}

	m = &Message{}
	if got := m.Body(); got != "" {
		t.Errorf("body = %q", got)
	}
}
