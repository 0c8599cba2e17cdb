package roster

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"escala/internal/core"
	"escala/pkg/domain"
)

const (
	whatsAppBase = "https://wa.me/?text="
	shareFooter  = "_Que tudo seja feito para a glória de Deus!_"
)

// Share is the message announcing a service's roster.
type Share struct {
	Label string `json:"label"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

// ShareText formats the roster message for label: a bold header, one line per
// assignment and the closing blessing.
func ShareText(label string, assignments []core.Assignment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*ESCALA DE SERVIÇO - %s*\n\n", label)
	for i, a := range assignments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "📍 *%s*: %s", a.SlotName, a.VolunteerName)
	}
	b.WriteString("\n\n")
	b.WriteString(shareFooter)
	return b.String()
}

// WhatsAppURL wraps text in a wa.me link. Spaces are percent-encoded rather
// than turned into '+'.
func WhatsAppURL(text string) string {
	return whatsAppBase + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

// Source is the part of the scheduling service the roster adapters read.
type Source interface {
	GetService(id string) (domain.Service, bool)
	ServiceAssignments(ctx context.Context, serviceID string) ([]core.Assignment, error)
	ServiceRoster(ctx context.Context, serviceID string) (core.RosterTable, error)
	FullRoster(ctx context.Context) (core.RosterTable, error)
}

// BuildShare assembles the share message of one service.
func BuildShare(ctx context.Context, src Source, serviceID string) (Share, error) {
	svc, ok := src.GetService(serviceID)
	if !ok {
		return Share{}, domain.NotFoundError{Entity: domain.EntityService, ID: serviceID}
	}
	assignments, err := src.ServiceAssignments(ctx, serviceID)
	if err != nil {
		return Share{}, err
	}
	label := domain.FormatServiceLabel(svc)
	text := ShareText(label, assignments)
	return Share{Label: label, Text: text, URL: WhatsAppURL(text)}, nil
}
