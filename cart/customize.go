package cart

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"quickeats/gorest/models"
)

// Builder assembles a customized meal. The base is single-select; proteins,
// vegetables and extras are toggle sets.
type Builder struct {
	base       *models.Option
	proteins   []models.Option
	vegetables []models.Option
	extras     []models.Option
}

func NewBuilder() *Builder {
	return &Builder{}
}

// SelectBase replaces the current base. Selecting the current base again
// clears it.
func (b *Builder) SelectBase(o models.Option) {
	if b.base != nil && sameOption(*b.base, o) {
		b.base = nil
		return
	}
	b.base = &o
}

func (b *Builder) ToggleProtein(o models.Option)   { b.proteins = toggle(b.proteins, o) }
func (b *Builder) ToggleVegetable(o models.Option) { b.vegetables = toggle(b.vegetables, o) }
func (b *Builder) ToggleExtra(o models.Option)     { b.extras = toggle(b.extras, o) }

func (b *Builder) Customization() *models.Customization {
	c := &models.Customization{
		Proteins:   append([]models.Option{}, b.proteins...),
		Vegetables: append([]models.Option{}, b.vegetables...),
		Extras:     append([]models.Option{}, b.extras...),
	}
	if b.base != nil {
		base := *b.base
		c.Base = &base
	}
	return c
}

// Price is the running price shown while the meal is being built.
func (b *Builder) Price() decimal.Decimal {
	return Price(b.Customization())
}

// Build validates the selection and returns it as a cart line.
func (b *Builder) Build() (models.CartLine, error) {
	c := b.Customization()
	if c.Base == nil {
		return models.CartLine{}, models.NewValidationError("base", "missing base")
	}
	return CustomLine(c), nil
}

// Price sums base, proteins, vegetables and extras.
func Price(c *models.Customization) decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	total := decimal.Zero
	if c.Base != nil {
		total = total.Add(decimal.NewFromFloat(c.Base.Price))
	}
	for _, group := range [][]models.Option{c.Proteins, c.Vegetables, c.Extras} {
		for _, o := range group {
			total = total.Add(decimal.NewFromFloat(o.Price))
		}
	}
	return total
}

// CustomLine turns a customization into a cart line. Identical selections
// share a key so they stack in the cart.
func CustomLine(c *models.Customization) models.CartLine {
	name := "Custom Meal"
	if c.Base != nil {
		name = fmt.Sprintf("Custom %s Bowl", c.Base.Name)
	}
	return models.CartLine{
		ItemKey:       Key(c),
		Name:          name,
		UnitPrice:     Price(c).InexactFloat64(),
		Quantity:      1,
		Customization: c,
	}
}

func Key(c *models.Customization) string {
	var parts []string
	if c.Base != nil {
		parts = append(parts, "b="+normalize(c.Base.Name))
	}
	for prefix, group := range map[string][]models.Option{"p": c.Proteins, "v": c.Vegetables, "e": c.Extras} {
		for _, o := range group {
			parts = append(parts, prefix+"="+normalize(o.Name))
		}
	}
	sort.Strings(parts)
	return "custom:" + strings.Join(parts, ",")
}

// OptionTable is the server's price list for customization options.
type OptionTable struct {
	Bases      []models.Option `json:"bases"`
	Proteins   []models.Option `json:"proteins"`
	Vegetables []models.Option `json:"vegetables"`
	Extras     []models.Option `json:"extras"`
}

var DefaultOptions = OptionTable{
	Bases: []models.Option{
		{Name: "Rice", Price: 40},
		{Name: "Noodles", Price: 50},
		{Name: "Roti", Price: 30},
	},
	Proteins: []models.Option{
		{Name: "Chicken", Price: 80},
		{Name: "Paneer", Price: 60},
		{Name: "Egg", Price: 40},
	},
	Vegetables: []models.Option{
		{Name: "Mixed Veg", Price: 30},
		{Name: "Mushroom", Price: 40},
		{Name: "Corn", Price: 25},
	},
	Extras: []models.Option{
		{Name: "Cheese", Price: 30},
		{Name: "Sauce", Price: 20},
		{Name: "Masala", Price: 15},
	},
}

// Reprice replaces every client-supplied option price with the table price.
// Unknown options and a missing base are validation errors; repeated
// selections within a group collapse to one.
func (t OptionTable) Reprice(c *models.Customization) (*models.Customization, error) {
	if c == nil || c.Base == nil {
		return nil, models.NewValidationError("base", "missing base")
	}
	base, ok := lookup(t.Bases, c.Base.Name)
	if !ok {
		return nil, models.NewValidationError("customizations.base", fmt.Sprintf("unknown option %q", c.Base.Name))
	}
	out := &models.Customization{Base: &base}
	var err error
	if out.Proteins, err = repriceGroup(t.Proteins, c.Proteins, "proteins"); err != nil {
		return nil, err
	}
	if out.Vegetables, err = repriceGroup(t.Vegetables, c.Vegetables, "vegetables"); err != nil {
		return nil, err
	}
	if out.Extras, err = repriceGroup(t.Extras, c.Extras, "extras"); err != nil {
		return nil, err
	}
	return out, nil
}

func repriceGroup(table, selected []models.Option, field string) ([]models.Option, error) {
	out := []models.Option{}
	for _, o := range selected {
		known, ok := lookup(table, o.Name)
		if !ok {
			return nil, models.NewValidationError("customizations."+field, fmt.Sprintf("unknown option %q", o.Name))
		}
		if contains(out, known) {
			continue
		}
		out = append(out, known)
	}
	return out, nil
}

func lookup(table []models.Option, name string) (models.Option, bool) {
	for _, o := range table {
		if normalize(o.Name) == normalize(name) {
			return o, true
		}
	}
	return models.Option{}, false
}

func toggle(set []models.Option, o models.Option) []models.Option {
	for i := range set {
		if sameOption(set[i], o) {
			return append(set[:i:i], set[i+1:]...)
		}
	}
	return append(set, o)
}

func contains(set []models.Option, o models.Option) bool {
	for _, s := range set {
		if sameOption(s, o) {
			return true
		}
	}
	return false
}

func sameOption(a, b models.Option) bool {
	return normalize(a.Name) == normalize(b.Name)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
