package section

import (
	"fmt"
	"maps"
	"math"
	"net/mail"
	"regexp"
	"slices"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pitabwire/repairdesk/internal/form"
	"github.com/pitabwire/repairdesk/internal/table"
	"github.com/pitabwire/repairdesk/model"
)

// TodayToken as a field default resolves to the current date.
const TodayToken = "$today"

// RendererFactory builds a cell renderer for one column definition.
type RendererFactory func(col model.ColumnDefinition) table.RenderFunc

// ValidatorFactory builds a field validator from its definition.
type ValidatorFactory func(def model.ValidationDefinition) (form.Validator, error)

// Catalog holds the named renderers, validators, and widgets that
// definitions can refer to.
type Catalog struct {
	renderers  map[string]RendererFactory
	validators map[string]ValidatorFactory
	widgets    map[string]form.RenderFunc
	printMu    sync.Mutex
	printer    *message.Printer
	currency   string
	now        func() time.Time
}

// NewCatalog returns a catalog with the built-in renderers and validators.
// Numbers are formatted for locale.
func NewCatalog(locale language.Tag) *Catalog {
	if locale == language.Und {
		locale = language.English
	}
	c := &Catalog{
		renderers:  make(map[string]RendererFactory),
		validators: make(map[string]ValidatorFactory),
		widgets:    make(map[string]form.RenderFunc),
		printer:    message.NewPrinter(locale),
		currency:   "₽",
		now:        time.Now,
	}

	c.RegisterRenderer("currency", c.currencyRenderer)
	c.RegisterRenderer("date", dateRenderer)
	c.RegisterRenderer("badge", badgeRenderer)
	c.RegisterRenderer("order_number", orderNumberRenderer)
	c.RegisterRenderer("low_stock", lowStockRenderer)

	c.RegisterValidator("email", emailValidator)
	return c
}

// RegisterRenderer adds or replaces a named column renderer.
func (c *Catalog) RegisterRenderer(name string, f RendererFactory) { c.renderers[name] = f }

// RegisterValidator adds or replaces a named field validator.
func (c *Catalog) RegisterValidator(name string, f ValidatorFactory) { c.validators[name] = f }

// RegisterWidget adds or replaces a named custom field widget.
func (c *Catalog) RegisterWidget(name string, f form.RenderFunc) { c.widgets[name] = f }

// RendererNames lists the registered renderer names in sorted order.
func (c *Catalog) RendererNames() []string { return slices.Sorted(maps.Keys(c.renderers)) }

// ValidatorNames lists the registered validator names in sorted order.
func (c *Catalog) ValidatorNames() []string { return slices.Sorted(maps.Keys(c.validators)) }

// SetClock replaces the time source used for date defaults.
func (c *Catalog) SetClock(now func() time.Time) { c.now = now }

func (c *Catalog) renderer(col model.ColumnDefinition) (table.RenderFunc, error) {
	if col.Render == "" {
		return nil, nil
	}
	f, ok := c.renderers[col.Render]
	if !ok {
		return nil, fmt.Errorf("column %q: unknown renderer %q", col.Key, col.Render)
	}
	return f(col), nil
}

func (c *Catalog) validator(fd model.FieldDefinition) (form.Validator, error) {
	def := fd.Validation
	if def == nil {
		return nil, nil
	}
	if def.Pattern != "" {
		return patternValidator(*def)
	}
	f, ok := c.validators[def.Validator]
	if !ok {
		return nil, fmt.Errorf("field %q: unknown validator %q", fd.Key, def.Validator)
	}
	return f(*def)
}

func (c *Catalog) widget(fd model.FieldDefinition) (form.RenderFunc, error) {
	if fd.Widget == "" {
		return nil, nil
	}
	w, ok := c.widgets[fd.Widget]
	if !ok {
		return nil, fmt.Errorf("field %q: unknown widget %q", fd.Key, fd.Widget)
	}
	return w, nil
}

// --- renderers ---

func (c *Catalog) currencyRenderer(model.ColumnDefinition) table.RenderFunc {
	return func(value any, _ model.Record) table.Cell {
		n, ok := number(value)
		if !ok || n == 0 {
			return table.Cell{Kind: table.CellEmpty, Text: table.DefaultLabels.Placeholder}
		}
		return table.Text(c.currency + c.formatAmount(n))
	}
}

func (c *Catalog) formatAmount(n float64) string {
	c.printMu.Lock()
	defer c.printMu.Unlock()
	if n == math.Trunc(n) {
		return c.printer.Sprintf("%d", int64(n))
	}
	return c.printer.Sprintf("%.2f", n)
}

func dateRenderer(model.ColumnDefinition) table.RenderFunc {
	return func(value any, _ model.Record) table.Cell {
		s := table.Stringify(value)
		if s == "" {
			return table.Cell{Kind: table.CellEmpty, Text: table.DefaultLabels.Placeholder}
		}
		if d, err := time.Parse(time.DateOnly, s); err == nil {
			return table.Text(d.Format("02 Jan 2006"))
		}
		return table.Text(s)
	}
}

func badgeRenderer(col model.ColumnDefinition) table.RenderFunc {
	statuses := maps.Clone(col.StatusMap)
	return func(value any, _ model.Record) table.Cell {
		raw := table.Stringify(value)
		if raw == "" {
			return table.Cell{Kind: table.CellEmpty, Text: table.DefaultLabels.Placeholder}
		}
		if st, ok := statuses[raw]; ok {
			return table.Badge(st.Label, st.Tone)
		}
		return table.Badge(raw, "")
	}
}

func orderNumberRenderer(model.ColumnDefinition) table.RenderFunc {
	return func(value any, _ model.Record) table.Cell {
		return table.Text("#" + table.Stringify(value))
	}
}

// lowStockRenderer flags a stock count below the row's minStock.
func lowStockRenderer(model.ColumnDefinition) table.RenderFunc {
	return func(value any, row model.Record) table.Cell {
		stock, _ := number(value)
		text := table.Stringify(value)
		if minStock, ok := number(row["minStock"]); ok && stock < minStock {
			return table.Badge(text, "destructive")
		}
		return table.Text(text)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// --- validators ---

func patternValidator(def model.ValidationDefinition) (form.Validator, error) {
	re, err := regexp.Compile(def.Pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", def.Pattern, err)
	}
	msg := def.Message
	if msg == "" {
		msg = "Invalid format"
	}
	return func(value any) string {
		s, _ := value.(string)
		if !re.MatchString(s) {
			return msg
		}
		return ""
	}, nil
}

func emailValidator(def model.ValidationDefinition) (form.Validator, error) {
	msg := def.Message
	if msg == "" {
		msg = "Invalid email address"
	}
	return func(value any) string {
		s, _ := value.(string)
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return msg
		}
		return ""
	}, nil
}
