package notify

import (
	"bytes"
	"context"
	"errors"
	htmltpl "html/template"
	"net/url"
	texttpl "text/template"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	"github.com/starlingpost/starlingpost/internal/observability/logger"
)

// ErrNoRecipient la cuenta no tiene email de contacto.
var ErrNoRecipient = errors.New("notify: account has no contact email")

const relinkSubject = "Reconnect your {{.Platform}} account"

const relinkText = `Hi,

StarlingPost can no longer read metrics for your {{.Platform}} account{{if .AccountName}} "{{.AccountName}}"{{end}}.
The platform revoked or expired our access. Reconnect it here:

{{.Link}}
`

const relinkHTML = `<p>Hi,</p>
<p>StarlingPost can no longer read metrics for your <strong>{{.Platform}}</strong> account{{if .AccountName}} &ldquo;{{.AccountName}}&rdquo;{{end}}.
The platform revoked or expired our access.</p>
<p><a href="{{.Link}}">Reconnect {{.Platform}}</a></p>
`

var (
	relinkSubjectT = texttpl.Must(texttpl.New("relink_subject").Parse(relinkSubject))
	relinkTextT    = texttpl.Must(texttpl.New("relink_txt").Parse(relinkText))
	relinkHTMLT    = htmltpl.Must(htmltpl.New("relink_html").Parse(relinkHTML))
)

// RelinkVars variables de los templates.
type RelinkVars struct {
	Platform    string
	AccountName string
	Link        string
}

// RelinkNotifier avisa al dueño de una cuenta marcada needsRelink.
type RelinkNotifier struct {
	sender       Sender
	dashboardURL string
}

// NewRelinkNotifier crea el notifier. dashboardURL es la página de cuentas vinculadas.
func NewRelinkNotifier(sender Sender, dashboardURL string) *RelinkNotifier {
	return &RelinkNotifier{sender: sender, dashboardURL: dashboardURL}
}

// NotifyRelink envía el aviso al ContactEmail de la cuenta.
func (n *RelinkNotifier) NotifyRelink(ctx context.Context, acc social.LinkedAccount) error {
	if acc.ContactEmail == "" {
		return ErrNoRecipient
	}
	vars := RelinkVars{Platform: string(acc.Platform), AccountName: acc.AccountName, Link: n.link(acc.Platform)}
	subject, html, text, err := RenderRelink(vars)
	if err != nil {
		return err
	}
	if err := n.sender.Send(acc.ContactEmail, subject, html, text); err != nil {
		return err
	}
	logger.From(ctx).Info("relink notice sent", logger.Component("notify"),
		logger.UserID(acc.UserID), logger.Platform(string(acc.Platform)), logger.AccountID(acc.AccountID))
	return nil
}

func (n *RelinkNotifier) link(p social.Platform) string {
	u, err := url.Parse(n.dashboardURL)
	if err != nil || n.dashboardURL == "" {
		return n.dashboardURL
	}
	q := u.Query()
	q.Set("relink", string(p))
	u.RawQuery = q.Encode()
	return u.String()
}

// RenderRelink renderiza subject, html y texto.
func RenderRelink(v RelinkVars) (subject, html, text string, err error) {
	var sb, hb, tb bytes.Buffer
	if err = relinkSubjectT.Execute(&sb, v); err != nil {
		return
	}
	if err = relinkHTMLT.Execute(&hb, v); err != nil {
		return
	}
	if err = relinkTextT.Execute(&tb, v); err != nil {
		return
	}
	return sb.String(), hb.String(), tb.String(), nil
}

// Noop descarta los avisos (SMTP sin configurar).
type Noop struct{}

func (Noop) NotifyRelink(ctx context.Context, acc social.LinkedAccount) error {
	logger.From(ctx).Debug("relink notice skipped, smtp not configured", logger.Component("notify"),
		logger.Platform(string(acc.Platform)), logger.AccountID(acc.AccountID))
	return nil
}
