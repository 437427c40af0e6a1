package http_api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/davidebtc/zapboard/internal/zap"
	"github.com/davidebtc/zapboard/pkg/nostr"
	"github.com/davidebtc/zapboard/pkg/validation"
)

// LeaderboardEntry is one ranked row in the leaderboard response.
type LeaderboardEntry struct {
	Rank  int    `json:"rank"`
	Payer string `json:"payer"`
	Npub  string `json:"npub"`
	Sats  int64  `json:"sats"`
	Zaps  int64  `json:"zaps"`
}

// LeaderboardResponse is the body of the /leaderboard endpoint.
type LeaderboardResponse struct {
	Week    string             `json:"week"`
	Entries []LeaderboardEntry `json:"entries"`
}

// RankResponse is the body of the /rank endpoint.
type RankResponse struct {
	Week  string `json:"week"`
	Payer string `json:"payer"`
	Rank  int    `json:"rank"`
	Sats  int64  `json:"sats"`
}

// StatsResponse is the body of the /stats endpoint.
type StatsResponse struct {
	TotalReceipts int64  `json:"total_receipts"`
	CurrentWeek   string `json:"current_week"`
}

// leaderboard is a handler for the /leaderboard endpoint. It returns the
// ranked totals for the requested week (default: the current week).
func (s *HTTPServer) leaderboard(c *gin.Context) {
	week := c.DefaultQuery("week", zap.CurrentWeekKey(time.Now()))
	if err := validation.ValidateWeekKey(week); err != nil {
		s.logger.Debug("Invalid week key", "error", err, "week", week)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week format: " + err.Error()})
		return
	}

	top := s.config.TopN
	if raw := c.Query("top"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top must be a positive integer"})
			return
		}
		top = parsed
	}

	totals, err := s.board.LeaderboardFor(week, top)
	if err != nil {
		s.logger.Error("Failed to load leaderboard", "error", err, "week", week)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}

	entries := make([]LeaderboardEntry, 0, len(totals))
	for i, total := range totals {
		entries = append(entries, LeaderboardEntry{
			Rank:  i + 1,
			Payer: total.PayerPubkey,
			Npub:  nostr.PayerLabel(total.PayerPubkey),
			Sats:  total.Sats,
			Zaps:  total.Count,
		})
	}

	c.JSON(http.StatusOK, LeaderboardResponse{Week: week, Entries: entries})
}

// rank is a handler for the /rank endpoint. It returns one payer's position
// for the requested week.
func (s *HTTPServer) rank(c *gin.Context) {
	week := c.DefaultQuery("week", zap.CurrentWeekKey(time.Now()))
	if err := validation.ValidateWeekKey(week); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid week format: " + err.Error()})
		return
	}

	payer, err := validation.ValidateAndNormalizeHexKey(c.Query("pubkey"))
	if err != nil {
		s.logger.Debug("Invalid pubkey", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pubkey: " + err.Error()})
		return
	}

	totals, err := s.board.LeaderboardFor(week, 0)
	if err != nil {
		s.logger.Error("Failed to load week totals", "error", err, "week", week)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load week totals"})
		return
	}

	for i, total := range totals {
		if total.PayerPubkey == payer {
			c.JSON(http.StatusOK, RankResponse{Week: week, Payer: payer, Rank: i + 1, Sats: total.Sats})
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "no counted zaps for this payer in this week"})
}

// stats is a handler for the /stats endpoint.
func (s *HTTPServer) stats(c *gin.Context) {
	total, currentWeek, err := s.board.Stats()
	if err != nil {
		s.logger.Error("Failed to load stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, StatsResponse{TotalReceipts: total, CurrentWeek: currentWeek})
}

// health is a handler for the /health endpoint.
func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
