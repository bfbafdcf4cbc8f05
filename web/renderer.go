// Package web renders a SaleResponse for humans. Rendering performs no
// validation of its own - that already happened in the core - but every
// string field is escaped before it is embedded in markup.
package web

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/domainsale/forsale/model"
)

// saleInfoTemplate relies on html/template's contextual auto-escaping for
// all field values
const saleInfoTemplate = `<h2>Domain for Sale: {{.Domain}}</h2>
<div class="domain-sale-info">
{{- if .Price}}
<div class="sale-price"><strong>Price:</strong> {{.Price}}</div>
{{- end}}
{{- if .Contact}}
<div class="sale-contact"><strong>Contact:</strong> <a href="{{.Contact}}">{{contactText .Contact}}</a></div>
{{- end}}
{{- if .URL}}
<div class="sale-url"><strong>More Info:</strong> <a href="{{.URL}}" target="_blank" rel="noopener noreferrer">{{.URL}}</a></div>
{{- end}}
{{- if .Expires}}
<div class="sale-expires"><strong>Expires:</strong> {{.Expires}}</div>
{{- end}}
</div>
`

const errorTemplate = `<div class="domain-sale-error">{{.}}</div>
`

// HTMLRenderer renders a SaleResponse as an HTML fragment
type HTMLRenderer struct {
	saleInfo *template.Template
	errorTpl *template.Template
}

// NewHTMLRenderer creates the renderer with its templates parsed once
func NewHTMLRenderer() *HTMLRenderer {
	funcs := template.FuncMap{
		"contactText": func(contact string) string {
			// the address reads better than the full mailto: URI
			return strings.TrimPrefix(contact, "mailto:")
		},
	}

	return &HTMLRenderer{
		saleInfo: template.Must(template.New("saleInfo").Funcs(funcs).Parse(saleInfoTemplate)),
		errorTpl: template.Must(template.New("error").Parse(errorTemplate)),
	}
}

// Render returns the HTML representation of the response
func (r *HTMLRenderer) Render(response *model.SaleResponse) (string, error) {
	var sb strings.Builder

	switch {
	case response.ForSale:
		if err := r.saleInfo.Execute(&sb, response); err != nil {
			return "", err
		}
	case len(response.Errors) > 0:
		kinds := make([]string, len(response.Errors))
		for i, e := range response.Errors {
			kinds[i] = e.Kind.String()
		}

		if err := r.errorTpl.Execute(&sb, strings.Join(kinds, ", ")); err != nil {
			return "", err
		}
	default:
		if err := r.errorTpl.Execute(&sb, fmt.Sprintf("Domain %s is not for sale", response.Domain)); err != nil {
			return "", err
		}
	}

	return sb.String(), nil
}

// ConsoleRenderer renders a SaleResponse as plain text
type ConsoleRenderer struct{}

// Render returns the text representation of the response
func (ConsoleRenderer) Render(response *model.SaleResponse) string {
	var sb strings.Builder

	if !response.ForSale {
		fmt.Fprintf(&sb, "Domain %s is not for sale\n", response.Domain)
	} else {
		fmt.Fprintf(&sb, "Domain for sale: %s\n", response.Domain)

		if response.Price != "" {
			fmt.Fprintf(&sb, "  price:   %s\n", response.Price)
		}

		if response.Contact != "" {
			fmt.Fprintf(&sb, "  contact: %s\n", response.Contact)
		}

		if response.URL != "" {
			fmt.Fprintf(&sb, "  url:     %s\n", response.URL)
		}

		if response.Expires != "" {
			fmt.Fprintf(&sb, "  expires: %s\n", response.Expires)
		}

		if len(response.Source) > 0 {
			fmt.Fprintf(&sb, "  source:  %s\n", strings.Join(response.Source, ", "))
		}
	}

	for _, e := range response.Errors {
		fmt.Fprintf(&sb, "  error:   %s\n", e.Error())
	}

	return sb.String()
}
