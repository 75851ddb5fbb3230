package cli

import (
	"fmt"
	"net/url"
	"strings"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"

	"github.com/pkordes/tripmate/internal/domain"
)

type SpendAddCmd struct {
	Label    string `arg:"" help:"What the money went on."`
	Amount   string `arg:"" help:"Amount in the spend's currency."`
	Currency string `short:"c" help:"GBP, THB or QAR." default:"THB" enum:"GBP,THB,QAR"`
	Area     string `short:"a" help:"Samui or Doha." default:"Samui" enum:"Samui,Doha"`
	Date     string `short:"d" help:"Date (YYYY-MM-DD). Defaults to today."`
	Notes    string `short:"n" help:"Free-text notes."`
}

func (c *SpendAddCmd) Run(ctx *Context) error {
	amount, err := decimal.NewFromString(strings.TrimSpace(c.Amount))
	if err != nil {
		return fmt.Errorf("%w: amount %q is not a number", domain.ErrValidation, c.Amount)
	}
	date, err := ctx.parseDate(c.Date)
	if err != nil {
		return err
	}
	spend := domain.Spend{
		ID:       domain.NewID(),
		Date:     openapi_types.Date{Time: date},
		Area:     domain.Area(c.Area),
		Label:    strings.TrimSpace(c.Label),
		Currency: domain.Currency(c.Currency),
		Amount:   amount,
		Notes:    c.Notes,
	}
	if err := ctx.Commit(func(s *domain.TripState) error {
		s.Spends = append(s.Spends, spend)
		return nil
	}); err != nil {
		return err
	}
	ctx.printf("Added spend %s: %s %s %s\n", spend.ID, spend.Label, spend.Amount, spend.Currency)
	return nil
}

type SpendRmCmd struct {
	ID string `arg:"" help:"Spend id."`
}

func (c *SpendRmCmd) Run(ctx *Context) error {
	if err := ctx.Commit(func(s *domain.TripState) error {
		i := s.FindSpend(c.ID)
		if i < 0 {
			return fmt.Errorf("%w: spend %s", domain.ErrNotFound, c.ID)
		}
		s.Spends = append(s.Spends[:i], s.Spends[i+1:]...)
		return nil
	}); err != nil {
		return err
	}
	ctx.printf("Removed spend %s\n", c.ID)
	return nil
}

type SpendListCmd struct{}

func (c *SpendListCmd) Run(ctx *Context) error {
	s, err := ctx.State()
	if err != nil {
		return err
	}
	if len(s.Spends) == 0 {
		ctx.println("No spends recorded.")
		return nil
	}
	ctx.printf("%-36s %-10s %-6s %-28s %12s %10s\n", "ID", "Date", "Area", "Label", "Amount", "GBP")
	ctx.println(strings.Repeat("-", 107))
	for _, r := range ledgerWithIDs(s) {
		ctx.printf("%-36s %-10s %-6s %-28s %12s %10s\n",
			r.id, r.Date, r.Area, clip(r.Label, 28), r.Amount.String()+" "+string(r.Currency), "£"+r.AmountGBP.StringFixed(2))
	}
	return nil
}

type ledgerRow struct {
	id string
	domain.LedgerRow
}

func ledgerWithIDs(s domain.TripState) []ledgerRow {
	rows := domain.Ledger(s)
	out := make([]ledgerRow, len(rows))
	for i, r := range rows {
		out[i] = ledgerRow{id: s.Spends[i].ID, LedgerRow: r}
	}
	return out
}

type CheckAddCmd struct {
	Label    string `arg:"" help:"Food or activity to tick off."`
	Area     string `short:"a" help:"Samui or Doha." default:"Samui" enum:"Samui,Doha"`
	Category string `short:"c" help:"Food or Activity." default:"Activity" enum:"Food,Activity"`
	Note     string `short:"n" help:"Optional note."`
}

func (c *CheckAddCmd) Run(ctx *Context) error {
	item := domain.ChecklistItem{
		ID:       domain.NewID(),
		Area:     domain.Area(c.Area),
		Category: domain.ChecklistCategory(c.Category),
		Label:    strings.TrimSpace(c.Label),
		Note:     c.Note,
	}
	if err := ctx.Commit(func(s *domain.TripState) error {
		s.Checklist = append(s.Checklist, item)
		return nil
	}); err != nil {
		return err
	}
	ctx.printf("Added checklist item %s\n", item.ID)
	return nil
}

type CheckToggleCmd struct {
	ID string `arg:"" help:"Checklist item id."`
}

func (c *CheckToggleCmd) Run(ctx *Context) error {
	var done bool
	if err := ctx.Commit(func(s *domain.TripState) error {
		i := s.FindChecklistItem(c.ID)
		if i < 0 {
			return fmt.Errorf("%w: checklist item %s", domain.ErrNotFound, c.ID)
		}
		s.Checklist[i].Done = !s.Checklist[i].Done
		done = s.Checklist[i].Done
		return nil
	}); err != nil {
		return err
	}
	if done {
		ctx.printf("Done: %s\n", c.ID)
	} else {
		ctx.printf("Not done: %s\n", c.ID)
	}
	return nil
}

type PlanAddCmd struct {
	Title string `arg:"" help:"What is planned."`
	Date  string `short:"d" help:"Date (YYYY-MM-DD). Defaults to today."`
	Time  string `short:"t" help:"Time of day (HH:MM). Empty for all day."`
	Area  string `short:"a" help:"Samui or Doha." default:"Samui" enum:"Samui,Doha"`
	Kind  string `short:"k" help:"Activity, Meal or Note." default:"Activity" enum:"Activity,Meal,Note"`
	Notes string `short:"n" help:"Free-text notes."`
}

func (c *PlanAddCmd) Run(ctx *Context) error {
	date, err := ctx.parseDate(c.Date)
	if err != nil {
		return err
	}
	item := domain.PlanItem{
		ID:    domain.NewID(),
		Date:  openapi_types.Date{Time: date},
		Area:  domain.Area(c.Area),
		Time:  strings.TrimSpace(c.Time),
		Kind:  domain.PlanKind(c.Kind),
		Title: strings.TrimSpace(c.Title),
		Notes: c.Notes,
	}
	if err := ctx.Commit(func(s *domain.TripState) error {
		s.Plan = append(s.Plan, item)
		return nil
	}); err != nil {
		return err
	}
	ctx.printf("Added plan item %s\n", item.ID)
	return nil
}

type PlanRmCmd struct {
	ID string `arg:"" help:"Plan item id."`
}

func (c *PlanRmCmd) Run(ctx *Context) error {
	if err := ctx.Commit(func(s *domain.TripState) error {
		i := s.FindPlanItem(c.ID)
		if i < 0 {
			return fmt.Errorf("%w: plan item %s", domain.ErrNotFound, c.ID)
		}
		s.Plan = append(s.Plan[:i], s.Plan[i+1:]...)
		return nil
	}); err != nil {
		return err
	}
	ctx.printf("Removed plan item %s\n", c.ID)
	return nil
}

type RestaurantAddCmd struct {
	Name    string   `arg:"" help:"Restaurant name."`
	Area    string   `short:"a" help:"Samui or Doha." default:"Samui" enum:"Samui,Doha"`
	Cuisine string   `short:"c" help:"Cuisine." default:"Thai"`
	Price   string   `short:"p" help:"Price tier: £, ££ or £££." default:"££" enum:"£,££,£££"`
	Tag     []string `short:"t" help:"Tag, repeatable."`
	MapsURL string   `name:"maps-url" help:"Map link. Defaults to a search for the name."`
}

func (c *RestaurantAddCmd) Run(ctx *Context) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: restaurant name is required", domain.ErrValidation)
	}
	maps := strings.TrimSpace(c.MapsURL)
	if maps == "" {
		maps = "https://maps.google.com/?q=" + url.QueryEscape(name)
	}
	r := domain.Restaurant{
		ID:        domain.NewID(),
		Name:      name,
		Area:      domain.Area(c.Area),
		Cuisine:   strings.TrimSpace(c.Cuisine),
		PriceTier: domain.PriceTier(c.Price),
		Tags:      append([]string{}, c.Tag...),
		MapsURL:   maps,
	}
	if err := ctx.Commit(func(s *domain.TripState) error {
		s.Restaurants = append(s.Restaurants, r)
		return nil
	}); err != nil {
		return err
	}
	ctx.printf("Added restaurant %s: %s\n", r.ID, r.Name)
	return nil
}

// RestaurantListCmd filters the way the dining list does: every set filter
// must match, the name search is a case-insensitive substring.
type RestaurantListCmd struct {
	Area    string `short:"a" help:"Only Samui or Doha."`
	Cuisine string `short:"c" help:"Only this cuisine."`
	Price   string `short:"p" help:"Only this price tier (£, ££ or £££)."`
	Query   string `name:"q" help:"Search by name."`
}

func (c *RestaurantListCmd) Validate() error {
	switch domain.Area(c.Area) {
	case "", domain.AreaSamui, domain.AreaDoha:
	default:
		return fmt.Errorf("--area must be Samui or Doha")
	}
	switch domain.PriceTier(c.Price) {
	case "", domain.PriceLow, domain.PriceMid, domain.PriceHigh:
	default:
		return fmt.Errorf("--price must be £, ££ or £££")
	}
	return nil
}

func (c *RestaurantListCmd) Run(ctx *Context) error {
	s, err := ctx.State()
	if err != nil {
		return err
	}
	found := filterRestaurants(s.Restaurants, *c)
	if len(found) == 0 {
		ctx.println("No restaurants found.")
		return nil
	}
	for _, r := range found {
		star := "☆"
		if r.Favourite {
			star = "★"
		}
		ctx.printf("%s %-36s %-28s %-6s %-18s %s\n", star, r.ID, clip(r.Name, 28), r.Area, clip(r.Cuisine, 18), r.PriceTier)
	}
	return nil
}

func filterRestaurants(all []domain.Restaurant, f RestaurantListCmd) []domain.Restaurant {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]domain.Restaurant, 0, len(all))
	for _, r := range all {
		switch {
		case f.Area != "" && r.Area != domain.Area(f.Area):
		case f.Cuisine != "" && !strings.EqualFold(r.Cuisine, strings.TrimSpace(f.Cuisine)):
		case f.Price != "" && r.PriceTier != domain.PriceTier(f.Price):
		case q != "" && !strings.Contains(strings.ToLower(r.Name), q):
		default:
			out = append(out, r)
		}
	}
	return out
}

type RestaurantFavCmd struct {
	ID string `arg:"" help:"Restaurant id."`
}

func (c *RestaurantFavCmd) Run(ctx *Context) error {
	var fav bool
	var name string
	if err := ctx.Commit(func(s *domain.TripState) error {
		i := s.FindRestaurant(c.ID)
		if i < 0 {
			return fmt.Errorf("%w: restaurant %s", domain.ErrNotFound, c.ID)
		}
		s.Restaurants[i].Favourite = !s.Restaurants[i].Favourite
		fav, name = s.Restaurants[i].Favourite, s.Restaurants[i].Name
		return nil
	}); err != nil {
		return err
	}
	if fav {
		ctx.printf("★ %s\n", name)
	} else {
		ctx.printf("☆ %s\n", name)
	}
	return nil
}

type StepsSetCmd struct {
	Count int    `arg:"" help:"Step count."`
	Date  string `short:"d" help:"Date (YYYY-MM-DD). Defaults to today."`
}

func (c *StepsSetCmd) Run(ctx *Context) error {
	date, err := ctx.parseDate(c.Date)
	if err != nil {
		return err
	}
	day := date.Format("2006-01-02")
	if err := ctx.Commit(func(s *domain.TripState) error {
		if s.Steps == nil {
			s.Steps = map[string]int{}
		}
		s.Steps[day] = c.Count
		return nil
	}); err != nil {
		return err
	}
	ctx.printf("Steps on %s: %d\n", day, c.Count)
	return nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
