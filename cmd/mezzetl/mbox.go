package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mezzetl/internal/source/mbox"
)

type mboxAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int    `json:"size_bytes"`
}

type mboxMessage struct {
	ID          string           `json:"id,omitempty"`
	Subject     string           `json:"subject"`
	From        string           `json:"from"`
	To          string           `json:"to,omitempty"`
	Date        string           `json:"date,omitempty"`
	Body        string           `json:"body,omitempty"`
	Attachments []mboxAttachment `json:"attachments,omitempty"`
}

type mboxReport struct {
	Messages    []mboxMessage `json:"messages"`
	ParseErrors []string      `json:"parse_errors,omitempty"`
}

func newMboxCmd(flags *rootFlags) *cobra.Command {
	var withBody bool

	cmd := &cobra.Command{
		Use:   "mbox <archive.mbox>",
		Short: "list messages and attachments from a mailbox archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lg := flags.logger()

			r, err := mbox.Open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			msgs, parseErrs, err := r.ReadAll()
			if err != nil {
				return err
			}
			lg.Printf("stage=read_mbox path=%s messages=%d parse_errors=%d", args[0], len(msgs), len(parseErrs))

			rep := mboxReport{Messages: make([]mboxMessage, 0, len(msgs))}
			for _, m := range msgs {
				out := mboxMessage{
					ID:      m.ID,
					Subject: m.Subject,
					From:    m.Sender,
					To:      m.To,
				}
				if !m.Date.IsZero() {
					out.Date = m.Date.Format(time.RFC3339)
				}
				if withBody {
					out.Body = m.Body()
				}
				for _, a := range m.Attachments {
					out.Attachments = append(out.Attachments, mboxAttachment{
						Filename:    a.Filename,
						ContentType: a.ContentType,
						SizeBytes:   a.Size,
					})
				}
				rep.Messages = append(rep.Messages, out)
			}
			for _, e := range parseErrs {
				rep.ParseErrors = append(rep.ParseErrors, e.Error())
			}

			if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if len(parseErrs) > 0 {
				fmt.Fprintf(os.Stderr, "warning: %d message(s) failed to parse\n", len(parseErrs))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withBody, "body", false, "include plain-text bodies (HTML flattened)")
	return cmd
}
