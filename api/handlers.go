package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gregtusar/synthlong/pkg/pricing"
	"github.com/gregtusar/synthlong/pkg/screener"
	"github.com/gregtusar/synthlong/pkg/strategy"
)

// paramsFromQuery applies the optional min_days, max_days and repeated
// variation query overrides to the configured parameters.
func (s *Server) paramsFromQuery(c *gin.Context) (strategy.Parameters, error) {
	params := s.params
	params.PutStrikeVariation = append([]float64(nil), s.params.PutStrikeVariation...)

	if v := c.Query("min_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("min_days: %w", err)
		}
		params.MinDays = n
	}
	if v := c.Query("max_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("max_days: %w", err)
		}
		params.MaxDays = n
	}
	if values := c.QueryArray("variation"); len(values) > 0 {
		params.PutStrikeVariation = params.PutStrikeVariation[:0]
		for _, v := range values {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return params, fmt.Errorf("variation: %w", err)
			}
			params.PutStrikeVariation = append(params.PutStrikeVariation, f)
		}
	}
	return params, params.Validate()
}

func (s *Server) screenError(c *gin.Context, err error) {
	if errors.Is(err, strategy.ErrInvalidParameters) {
		s.fail(c, http.StatusBadRequest, "invalid parameters", err)
		return
	}
	s.fail(c, http.StatusBadGateway, "market data unavailable", err)
}

func (s *Server) handleScreen(c *gin.Context) {
	ticker := strings.ToUpper(c.Param("ticker"))
	params, err := s.paramsFromQuery(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid parameters", err)
		return
	}

	results, err := s.engine.Evaluate(c.Request.Context(), ticker, params)
	if err != nil {
		s.screenError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticker":  ticker,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleBest(c *gin.Context) {
	ticker := strings.ToUpper(c.Param("ticker"))
	params, err := s.paramsFromQuery(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid parameters", err)
		return
	}

	best, err := s.engine.BestResult(c.Request.Context(), ticker, params)
	if err != nil {
		s.screenError(c, err)
		return
	}
	if best == nil {
		s.fail(c, http.StatusNotFound, "no qualifying trades", nil)
		return
	}
	c.JSON(http.StatusOK, best)
}

func (s *Server) handleLatestRun(c *gin.Context) {
	if s.runner == nil {
		s.fail(c, http.StatusServiceUnavailable, "screener not configured", nil)
		return
	}
	run, ok := s.runner.Latest()
	if !ok {
		s.fail(c, http.StatusNotFound, "no completed runs", nil)
		return
	}
	c.JSON(http.StatusOK, run)
}

type runRequest struct {
	Tickers []string `json:"tickers"`
	Mode    string   `json:"mode"`
	Top     int      `json:"top" binding:"gte=0"`
}

func (s *Server) handleTriggerRun(c *gin.Context) {
	if s.runner == nil {
		s.fail(c, http.StatusServiceUnavailable, "screener not configured", nil)
		return
	}

	var req runRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, http.StatusBadRequest, "invalid run request", err)
			return
		}
	}
	mode, err := screener.ParseMode(req.Mode)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid run request", err)
		return
	}

	tickers := make([]string, 0, len(req.Tickers))
	for _, t := range req.Tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			tickers = append(tickers, t)
		}
	}

	run, err := s.runner.Execute(c.Request.Context(), screener.Request{Tickers: tickers, Mode: mode, Top: req.Top})
	if err != nil {
		s.screenError(c, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

func (s *Server) handlePrice(c *gin.Context) {
	fields := map[string]float64{"rate": s.params.RiskFreeRate}
	for _, name := range []string{"spot", "strike", "days", "rate", "vol"} {
		raw := c.Query(name)
		if raw == "" {
			if _, ok := fields[name]; ok {
				continue
			}
			s.fail(c, http.StatusBadRequest, "invalid pricing input", fmt.Errorf("%s is required", name))
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.fail(c, http.StatusBadRequest, "invalid pricing input", fmt.Errorf("%s: %w", name, err))
			return
		}
		fields[name] = v
	}

	spot, strike := fields["spot"], fields["strike"]
	premium, err := pricing.BlackScholes(spot, strike, fields["days"]/365.0, fields["rate"], fields["vol"])
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid pricing input", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"call":           premium.Call,
		"put":            premium.Put,
		"intrinsic_call": pricing.IntrinsicCall(spot, strike),
		"intrinsic_put":  pricing.IntrinsicPut(spot, strike),
	})
}
