package mailbox

import (
	"context"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomail "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/pkg/util"
)

// Message is one unread inbound email.
type Message struct {
	UID     uint32
	From    string
	Subject string
	Body    string
}

// Source yields unread messages from the support inbox.
type Source interface {
	FetchUnread(ctx context.Context) ([]Message, error)
}

// IMAPSource reads unseen messages over IMAP. Each fetch dials a fresh,
// short-lived session so overlapping sweeps never share connection state.
type IMAPSource struct {
	cfg    config.MailboxConfig
	logger *zap.Logger
}

// NewIMAPSource creates the source.
func NewIMAPSource(cfg config.MailboxConfig, logger *zap.Logger) *IMAPSource {
	return &IMAPSource{cfg: cfg, logger: logger}
}

// FetchUnread returns all unseen messages in the configured folder. Fetching
// marks them seen server-side, so a message is delivered at most once per
// mailbox even across restarts.
func (s *IMAPSource) FetchUnread(ctx context.Context) ([]Message, error) {
	c, err := client.DialTLS(s.cfg.Addr(), nil)
	if err != nil {
		return nil, util.NewAdapterError("dial imap", err)
	}
	defer c.Logout() //nolint:errcheck

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return nil, util.NewAdapterError("imap login", err)
	}
	if _, err := c.Select(s.cfg.Folder, false); err != nil {
		return nil, util.NewAdapterError("select folder", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, util.NewAdapterError("search unseen", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, ch)
	}()

	var result []Message
	for msg := range ch {
		m := Message{UID: msg.Uid}
		if msg.Envelope != nil {
			m.Subject = msg.Envelope.Subject
			if len(msg.Envelope.From) > 0 {
				m.From = msg.Envelope.From[0].Address()
			}
		}
		if r := msg.GetBody(section); r != nil {
			body, err := readTextBody(r)
			if err != nil {
				s.logger.Warn("unreadable message body", zap.Uint32("uid", msg.Uid), zap.Error(err))
			}
			m.Body = body
		}
		result = append(result, m)
	}
	if err := <-done; err != nil {
		return nil, util.NewAdapterError("fetch messages", err)
	}
	return result, nil
}

// readTextBody prefers the text/plain part and falls back to text/html.
func readTextBody(r io.Reader) (string, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil {
		return "", err
	}

	var html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(part.Body)
		if err != nil {
			return "", err
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			return string(content), nil
		case strings.HasPrefix(contentType, "text/html") && html == "":
			html = string(content)
		}
	}
	return html, nil
}
