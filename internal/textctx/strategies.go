package textctx

import (
	"context"
	"fmt"

	"wordfill/internal/element"
)

// Strategy names accepted by StrategiesByName.
const (
	StrategyValue     = "value"
	StrategySelection = "selection"
	StrategyTitle     = "title"
)

// DefaultStrategies returns value, selection and title, in that order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: StrategyValue, Extract: fromValue},
		{Name: StrategySelection, Extract: fromSelection},
		{Name: StrategyTitle, Extract: fromTitle},
	}
}

// StrategiesByName returns the named strategies in the given order.
func StrategiesByName(names []string) ([]Strategy, error) {
	all := map[string]Strategy{}
	for _, s := range DefaultStrategies() {
		all[s.Name] = s
	}
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		s, ok := all[n]
		if !ok {
			return nil, fmt.Errorf("unknown extraction strategy %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}

// fromValue reads the whole value. The cursor is the end of the selected
// range, or the end of the text when the element has no range.
func fromValue(ctx context.Context, h element.Handle) (Partial, error) {
	text, err := element.StringAttr(ctx, h, element.AttrValue)
	if err != nil {
		return Partial{}, err
	}
	p := Partial{Text: text, Cursor: Len16(text)}
	if r, err := element.RangeAttr(ctx, h, element.AttrSelectedRange); err == nil {
		p.Cursor = r.End
	}
	if sel, err := element.StringAttr(ctx, h, element.AttrSelectedText); err == nil && sel != "" {
		p.Selected = &sel
	}
	return p, nil
}

// fromSelection serves elements that expose only their selection. The text
// is the selection itself, positioned within the element by its range.
func fromSelection(ctx context.Context, h element.Handle) (Partial, error) {
	sel, err := element.StringAttr(ctx, h, element.AttrSelectedText)
	if err != nil {
		return Partial{}, err
	}
	p := Partial{Text: sel, Selected: &sel, Cursor: Len16(sel)}
	if r, err := element.RangeAttr(ctx, h, element.AttrSelectedRange); err == nil {
		p.Base = r.Start
	}
	return p, nil
}

// fromTitle is the last resort for elements that carry text only as a
// title or label.
func fromTitle(ctx context.Context, h element.Handle) (Partial, error) {
	text, err := element.StringAttr(ctx, h, element.AttrTitle)
	if err != nil || text == "" {
		text, err = element.StringAttr(ctx, h, element.AttrDescription)
	}
	if err != nil {
		return Partial{}, err
	}
	return Partial{Text: text, Cursor: Len16(text)}, nil
}
