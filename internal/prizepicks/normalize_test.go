package prizepicks

import (
	"encoding/json"
	"testing"
	"time"
)

const projectionsFixture = `{
  "data": [
    {"id": "p1", "type": "projection",
     "attributes": {"line_score": "25.5", "stat_type": "Points", "start_time": "2024-03-01T19:00:00-05:00",
                    "status": "pre_game", "rank": "3", "is_promo": "true", "odds_type": "standard"},
     "relationships": {"new_player": {"data": {"id": "n1", "type": "new_player"}},
                       "league": {"data": {"id": "7", "type": "league"}}}},
    {"id": "p2", "type": "projection",
     "attributes": {"line_score": 8.5, "start_time": "2024-03-01T19:00:00Z", "description": "Fallback Name"},
     "relationships": {"new_player": {"data": {"id": "n2", "type": "new_player"}},
                       "league": {"data": {"id": "7", "type": "league"}},
                       "stat_type": {"data": {"id": "s1", "type": "stat_type"}}}},
    {"id": "p3", "type": "projection",
     "attributes": {"line_score": 10, "stat_type": "Rebounds"},
     "relationships": {"league": {"data": {"id": "7", "type": "league"}}}},
    {"id": "p4", "type": "projection",
     "attributes": {"line_score": 10, "stat_type": "Rebounds", "start_time": "tonight"},
     "relationships": {"new_player": {"data": {"id": "n1", "type": "new_player"}},
                       "league": {"data": {"id": "7", "type": "league"}}}}
  ],
  "included": [
    {"id": "n1", "type": "new_player", "attributes": {"name": "LeBron James", "team_name": "Lakers", "position": "F"}},
    {"id": "n2", "type": "new_player", "attributes": {"name": "", "team": "DEN", "position": "C"}},
    {"id": "7", "type": "league", "attributes": {"name": "NBA", "sport": "BASKETBALL"}},
    {"id": "s1", "type": "stat_type", "attributes": {"name": "Assists"}}
  ]
}`

func TestNormalize(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(projectionsFixture), &doc); err != nil {
		t.Fatalf("fixture: %v", err)
	}

	lookup := NewLookup()
	if skipped := lookup.Add(doc.Included); skipped != 0 {
		t.Fatalf("Add() skipped %d included records", skipped)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	res := Normalize(doc.Data, lookup, now)

	if len(res.Projections) != 2 {
		t.Fatalf("got %d projections, want 2 (errors: %v)", len(res.Projections), res.Errors)
	}
	if res.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2 (no player, bad start_time)", res.Skipped)
	}

	p1 := res.Projections[0]
	if p1.PlayerName != "LeBron James" || p1.Team != "Lakers" || p1.League != "NBA" || p1.Sport != "BASKETBALL" {
		t.Errorf("p1 player/league = %+v", p1)
	}
	if p1.LineScore != 25.5 || p1.Rank != 3 || !p1.IsPromo {
		t.Errorf("p1 flex fields: line=%v rank=%d promo=%v", p1.LineScore, p1.Rank, p1.IsPromo)
	}
	if p1.OverOdds != -110 || p1.UnderOdds != -110 || p1.Source != Source {
		t.Errorf("p1 defaults: %+v", p1)
	}
	if !p1.StartTime.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("p1 StartTime = %v", p1.StartTime)
	}
	if !p1.UpdatedAt.Equal(now) {
		t.Errorf("p1 UpdatedAt = %v, want fallback %v", p1.UpdatedAt, now)
	}

	p2 := res.Projections[1]
	if p2.PlayerName != "Fallback Name" || p2.Team != "DEN" {
		t.Errorf("p2 name/team = %q/%q", p2.PlayerName, p2.Team)
	}
	if p2.StatType != "Assists" {
		t.Errorf("p2 StatType = %q, want stat type from relationship", p2.StatType)
	}
	if p2.Status != "active" {
		t.Errorf("p2 Status = %q, want default active", p2.Status)
	}
}

func TestNormalizeLeagues(t *testing.T) {
	data := []Resource{
		{ID: "7", Attributes: json.RawMessage(`{"name":"NBA","sport":"BASKETBALL"}`)},
		{ID: "9"},
		{ID: ""},
	}
	got := NormalizeLeagues(data)
	if len(got) != 2 {
		t.Fatalf("got %d leagues, want 2", len(got))
	}
	if got[0].Name != "NBA" || got[1].Name != "9" {
		t.Errorf("names = %q, %q", got[0].Name, got[1].Name)
	}
}

func TestFlexUnmarshal_MixedTypes(t *testing.T) {
	var attrs ProjectionAttributes
	input := `{"line_score": "1.5", "rank": 4, "is_promo": false, "stat_type": "Kills", "status": 1}`
	if err := json.Unmarshal([]byte(input), &attrs); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if attrs.LineScore != 1.5 || attrs.Rank != 4 || attrs.StatType != "Kills" || attrs.Status != "1" {
		t.Errorf("attrs = %+v", attrs)
	}
}
