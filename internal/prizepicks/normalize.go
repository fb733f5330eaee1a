package prizepicks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/a1betting/prop-engine/internal/models"
)

// Source is stamped on every normalized projection
const Source = "PrizePicks"

var validate = validator.New()

// Lookup flattens sideloaded player, league and stat type records. One
// Lookup is built per ingestion cycle from every page's included array.
type Lookup struct {
	players   map[string]PlayerAttributes
	leagues   map[string]LeagueAttributes
	statTypes map[string]string
}

func NewLookup() *Lookup {
	return &Lookup{
		players:   make(map[string]PlayerAttributes),
		leagues:   make(map[string]LeagueAttributes),
		statTypes: make(map[string]string),
	}
}

// Add indexes included records. It returns how many could not be decoded.
func (l *Lookup) Add(included []Resource) int {
	skipped := 0
	for _, item := range included {
		var err error
		switch item.Type {
		case "new_player", "player":
			var attrs PlayerAttributes
			if err = json.Unmarshal(item.Attributes, &attrs); err == nil {
				l.players[item.ID] = attrs
			}
		case "league":
			var attrs LeagueAttributes
			if err = json.Unmarshal(item.Attributes, &attrs); err == nil {
				l.leagues[item.ID] = attrs
			}
		case "stat_type":
			var attrs StatTypeAttributes
			if err = json.Unmarshal(item.Attributes, &attrs); err == nil {
				l.statTypes[item.ID] = attrs.Name
			}
		}
		if err != nil {
			skipped++
		}
	}
	return skipped
}

// Len returns the number of indexed records.
func (l *Lookup) Len() int {
	return len(l.players) + len(l.leagues) + len(l.statTypes)
}

// NormalizeResult holds the projections that survived normalization
type NormalizeResult struct {
	Projections []models.Projection
	Skipped     int
	Errors      []error
}

// Normalize converts projection resources into models.Projection. Records
// that fail to decode or validate are skipped and reported, never fatal.
func Normalize(data []Resource, lookup *Lookup, now time.Time) NormalizeResult {
	res := NormalizeResult{Projections: make([]models.Projection, 0, len(data))}
	for _, r := range data {
		p, err := normalizeOne(r, lookup, now)
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Errorf("projection %q: %w", r.ID, err))
			continue
		}
		res.Projections = append(res.Projections, p)
	}
	return res
}

func normalizeOne(r Resource, lookup *Lookup, now time.Time) (models.Projection, error) {
	var attrs ProjectionAttributes
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return models.Projection{}, fmt.Errorf("decode attributes: %w", err)
		}
	}

	playerID := r.RelatedID("new_player")
	if playerID == "" {
		playerID = r.RelatedID("player")
	}
	player := lookup.players[playerID]

	leagueID := r.RelatedID("league")
	league := lookup.leagues[leagueID]

	p := models.Projection{
		ID:             r.ID,
		PlayerID:       playerID,
		PlayerName:     firstNonEmpty(player.Name, attrs.Description),
		Team:           firstNonEmpty(player.TeamName, player.Team),
		Position:       player.Position,
		League:         firstNonEmpty(league.Name, leagueID, player.League),
		Sport:          league.Sport,
		StatType:       firstNonEmpty(attrs.StatType, lookup.statTypes[r.RelatedID("stat_type")]),
		LineScore:      attrs.LineScore,
		OverOdds:       models.DefaultOdds,
		UnderOdds:      models.DefaultOdds,
		Status:         firstNonEmpty(attrs.Status, "active"),
		Description:    attrs.Description,
		OddsType:       attrs.OddsType,
		ProjectionType: attrs.ProjectionType,
		Rank:           attrs.Rank,
		IsPromo:        attrs.IsPromo,
		Source:         Source,
	}

	var err error
	if p.StartTime, err = parseTime(attrs.StartTime, now); err != nil {
		return models.Projection{}, fmt.Errorf("start_time: %w", err)
	}
	if p.UpdatedAt, err = parseTime(attrs.UpdatedAt, now); err != nil {
		return models.Projection{}, fmt.Errorf("updated_at: %w", err)
	}

	if err := validate.Struct(p); err != nil {
		return models.Projection{}, err
	}
	return p, nil
}

// NormalizeLeagues converts league resources, skipping ones without an id.
func NormalizeLeagues(data []Resource) []models.League {
	leagues := make([]models.League, 0, len(data))
	for _, r := range data {
		if r.ID == "" {
			continue
		}
		var attrs LeagueAttributes
		if len(r.Attributes) > 0 {
			_ = json.Unmarshal(r.Attributes, &attrs)
		}
		leagues = append(leagues, models.League{
			ID:    r.ID,
			Name:  firstNonEmpty(attrs.Name, r.ID),
			Sport: attrs.Sport,
		})
	}
	return leagues
}

func parseTime(s string, fallback time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
