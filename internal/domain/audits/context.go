package audits

import "strings"

// ProductType enum
type ProductType string

const (
	ProductMarketplace ProductType = "marketplace"
	ProductSocial      ProductType = "social"
	ProductSaaS        ProductType = "saas"
	ProductVideo       ProductType = "video"
	ProductAudio       ProductType = "audio"
	ProductFinance     ProductType = "finance"
)

// Device enum
type Device string

const (
	DeviceWeb    Device = "web"
	DeviceTablet Device = "tablet"
	DeviceMobile Device = "mobile"
)

// ProductTypes in display order.
var ProductTypes = []ProductType{ProductMarketplace, ProductSocial, ProductSaaS, ProductVideo, ProductAudio, ProductFinance}

// Devices in display order.
var Devices = []Device{DeviceWeb, DeviceTablet, DeviceMobile}

// display labels used by the submission form
var productLabels = map[string]ProductType{
	"marketplace":         ProductMarketplace,
	"rede social":         ProductSocial,
	"saas/web app":        ProductSaaS,
	"saas":                ProductSaaS,
	"web app":             ProductSaaS,
	"conteudo de video":   ProductVideo,
	"conteudo de audio":   ProductAudio,
	"financeiro e gestao": ProductFinance,
	"financeiro":          ProductFinance,
}

var deviceLabels = map[string]Device{
	"desktop": DeviceWeb,
	"celular": DeviceMobile,
}

// ParseProductType accepts a slug or a display label.
func ParseProductType(s string) (ProductType, bool) {
	k := Fold(s)
	for _, p := range ProductTypes {
		if k == string(p) {
			return p, true
		}
	}
	p, ok := productLabels[k]
	return p, ok
}

// ParseDevice accepts a slug or a display label.
func ParseDevice(s string) (Device, bool) {
	k := Fold(s)
	for _, d := range Devices {
		if k == string(d) {
			return d, true
		}
	}
	d, ok := deviceLabels[k]
	return d, ok
}

// AnalysisContext describes what is being audited. Immutable once a pipeline starts.
type AnalysisContext struct {
	ProductType     ProductType `json:"productType"`
	Device          Device      `json:"device"`
	InteractionType string      `json:"interactionType"`
	FlowType        string      `json:"flowType"`
}

// Validate checks required fields and the closed vocabularies, returning the
// normalized context. Interaction and flow stay opaque labels.
func Validate(c AnalysisContext) (AnalysisContext, error) {
	out := AnalysisContext{
		InteractionType: strings.TrimSpace(c.InteractionType),
		FlowType:        strings.TrimSpace(c.FlowType),
	}
	required := []struct{ field, value string }{
		{"productType", string(c.ProductType)},
		{"device", string(c.Device)},
		{"interactionType", out.InteractionType},
		{"flowType", out.FlowType},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return AnalysisContext{}, NewValidationError(CodeMissingField, r.field, "is required")
		}
	}

	p, ok := ParseProductType(string(c.ProductType))
	if !ok {
		return AnalysisContext{}, NewValidationError(CodeUnknownEnum, "productType", "unknown product type %q", c.ProductType)
	}
	d, ok := ParseDevice(string(c.Device))
	if !ok {
		return AnalysisContext{}, NewValidationError(CodeUnknownEnum, "device", "unknown device %q", c.Device)
	}
	out.ProductType = p
	out.Device = d
	return out, nil
}
