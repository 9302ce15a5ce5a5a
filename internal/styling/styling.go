// Package styling recolors models by discipline, using the file name prefix
// as the discipline code.
package styling

import (
	"image/color"
	"strings"

	"github.com/dl-alexandre/bimview/internal/config"
	"github.com/dl-alexandre/bimview/internal/model"
)

// Rule paints every material of a model whose file name starts with Prefix.
// Prefix matching is case-sensitive.
type Rule struct {
	Prefix      string
	Color       color.RGBA
	Opacity     float32
	DoubleSided bool
}

// Policy is an ordered rule table; the first matching rule wins
type Policy struct {
	rules []Rule
}

// NewPolicy creates a policy from rules, kept in order
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: append([]Rule(nil), rules...)}
}

// FromConfig converts configured color rules. Colors are validated by
// config.Validate, but are checked again here.
func FromConfig(rules []config.ColorRule) (*Policy, error) {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		rgb, err := config.ParseHexColor(r.Color)
		if err != nil {
			return nil, err
		}
		out = append(out, Rule{
			Prefix: r.Prefix,
			Color: color.RGBA{
				R: uint8(rgb >> 16),
				G: uint8(rgb >> 8),
				B: uint8(rgb),
				A: 255,
			},
			Opacity:     float32(r.Opacity),
			DoubleSided: r.DoubleSided,
		})
	}
	return NewPolicy(out...), nil
}

// Match returns the rule for fileName, if any
func (p *Policy) Match(fileName string) (Rule, bool) {
	if p == nil {
		return Rule{}, false
	}
	for _, r := range p.rules {
		if strings.HasPrefix(fileName, r.Prefix) {
			return r, true
		}
	}
	return Rule{}, false
}

// Apply restyles every material of m when fileName matches a rule and
// reports whether a rule applied. Unmatched models keep their own materials.
func (p *Policy) Apply(fileName string, m *model.Model) bool {
	r, ok := p.Match(fileName)
	if !ok || m == nil {
		return false
	}
	for _, mat := range m.Materials() {
		mat.Color = r.Color
		mat.Opacity = r.Opacity
		mat.Transparent = r.Opacity < 1
		mat.DoubleSided = r.DoubleSided
	}
	return true
}

// Rules returns a copy of the rule table
func (p *Policy) Rules() []Rule {
	if p == nil {
		return nil
	}
	return append([]Rule(nil), p.rules...)
}
