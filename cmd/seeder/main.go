package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// seedPlayer is a (player, stat) pair with the mean and spread its games are drawn from
type seedPlayer struct {
	ID       string
	StatType string
	Mean     float64
	StdDev   float64
}

var defaultPlayers = []seedPlayer{
	{"206", "Points", 25.4, 5.1},
	{"206", "Rebounds", 7.6, 2.2},
	{"1742", "Pass Yards", 268.0, 41.0},
	{"3310", "Strikeouts", 6.8, 1.9},
	{"5120", "Shots On Goal", 3.4, 1.3},
}

const insertPerformance = `
	INSERT INTO player_performance
		(player_id, stat_type, game_date, actual_value, projected_value, difference, over_under_result)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (player_id, stat_type, game_date) DO NOTHING`

func main() {
	dsn := flag.String("postgres", os.Getenv("POSTGRES_URL"), "PostgreSQL connection URL")
	games := flag.Int("games", 30, "games to generate per player and stat")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	log := logger.Sugar()

	if *dsn == "" {
		log.Fatal("POSTGRES_URL or -postgres is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		log.Fatalw("Failed to connect", "error", err)
	}
	defer pool.Close()

	rng := rand.New(rand.NewSource(*seed))
	today := time.Now().UTC().Truncate(24 * time.Hour)

	batch := &pgx.Batch{}
	for _, p := range defaultPlayers {
		for _, r := range generate(p, *games, today, rng) {
			batch.Queue(insertPerformance, r.playerID, r.statType, r.gameDate,
				r.actual, r.projected, r.difference, r.result)
		}
	}

	results := pool.SendBatch(ctx, batch)
	inserted := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			log.Fatalw("Insert failed", "row", i, "error", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		log.Fatalw("Batch failed", "error", err)
	}

	log.Infow("Seeded player performance",
		"players", len(defaultPlayers),
		"queued", batch.Len(),
		"inserted", inserted,
	)
	fmt.Println("✅ Seeding complete")
}

type performanceRow struct {
	playerID   string
	statType   string
	gameDate   time.Time
	actual     float64
	projected  float64
	difference float64
	result     string
}

// generate draws one game every other day going back from today. The
// projected value trails the true mean so results split between OVER and UNDER.
func generate(p seedPlayer, games int, today time.Time, rng *rand.Rand) []performanceRow {
	rows := make([]performanceRow, 0, games)
	for i := 0; i < games; i++ {
		actual := math.Max(0, rng.NormFloat64()*p.StdDev+p.Mean)
		projected := p.Mean + rng.NormFloat64()*p.StdDev/4

		actual = roundTo(actual, 1)
		projected = roundTo(projected, 1)

		result := "PUSH"
		switch {
		case actual > projected:
			result = "OVER"
		case actual < projected:
			result = "UNDER"
		}
		rows = append(rows, performanceRow{
			playerID:   p.ID,
			statType:   strings.TrimSpace(p.StatType),
			gameDate:   today.AddDate(0, 0, -2*(i+1)),
			actual:     actual,
			projected:  projected,
			difference: roundTo(actual-projected, 1),
			result:     result,
		})
	}
	return rows
}

func roundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
