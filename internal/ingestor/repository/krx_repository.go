package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"k-stock-insight/internal/ingestor/config"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/pkg/common"
	"k-stock-insight/pkg/logger"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	krxDataPath = "/comm/bldAttendant/getJsonData.cmd"

	bldStockListing   = "dbms/MDC/STAT/standard/MDCSTAT01901"
	bldStockOHLCV     = "dbms/MDC/STAT/standard/MDCSTAT01701"
	bldInvestorByDate = "dbms/MDC/STAT/standard/MDCSTAT02303"
	bldIndexFinder    = "dbms/comm/finder/finder_equidx"
	bldIndexOHLCV     = "dbms/MDC/STAT/standard/MDCSTAT00301"

	krxParamDateLayout = "20060102"

	cacheKeyListing   = "listing:%s"
	cacheKeyFullCode  = "full_code:%s"
	cacheKeyIndexList = "index_listing:%s"
)

const (
	krxFieldDate = "TRD_DD"

	krxFieldShortCode  = "ISU_SRT_CD"
	krxFieldFullCode   = "ISU_CD"
	krxFieldName       = "ISU_ABBRV"
	krxFieldListedDate = "LIST_DD"

	krxFieldIndexGroup = "full_code"
	krxFieldIndexCode  = "short_code"
	krxFieldIndexName  = "codeName"
)

var (
	krxMarketIDs      = map[string]string{common.MarketKOSPI: "STK", common.MarketKOSDAQ: "KSQ"}
	krxIndexMarketIDs = map[string]string{common.MarketKOSPI: "1", common.MarketKOSDAQ: "2"}
	krxRowDateLayouts = []string{"2006/01/02", "20060102", "2006-01-02"}
)

// KRXRepository is the upstream market data provider. A failing call returns an error;
// a window without trading activity returns an empty slice and a nil error.
type KRXRepository interface {
	ListTickers(ctx context.Context, market string) ([]dto.Listing, error)
	ListIndices(ctx context.Context, market string) ([]dto.Listing, error)
	GetStockOHLCV(ctx context.Context, ticker string, start, end time.Time) ([]dto.RawRow, error)
	GetInvestorNetValues(ctx context.Context, ticker string, start, end time.Time) ([]dto.RawRow, error)
	GetIndexOHLCV(ctx context.Context, code string, start, end time.Time) ([]dto.RawRow, error)
}

type krxRepository struct {
	cfg            *config.Config
	log            *logger.Logger
	httpClient     *http.Client
	requestLimiter *rate.Limiter
	inmemoryCache  *cache.Cache
}

type krxResponse struct {
	Output []map[string]interface{} `json:"output"`
	Block1 []map[string]interface{} `json:"block1"`
}

// NewKRXRepository creates a KRX client. Every request, from any goroutine, waits on one
// shared limiter so the configured minimum delay holds in aggregate.
func NewKRXRepository(cfg *config.Config, log *logger.Logger) KRXRepository {
	interval := time.Minute / time.Duration(cfg.KRX.MaxRequestPerMinute)
	if cfg.Ingest.RequestDelay > interval {
		interval = cfg.Ingest.RequestDelay
	}
	return &krxRepository{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: cfg.KRX.Timeout,
		},
		requestLimiter: rate.NewLimiter(rate.Every(interval), 1),
		inmemoryCache:  cache.New(time.Hour, 2*time.Hour),
	}
}

func (r *krxRepository) ListTickers(ctx context.Context, market string) ([]dto.Listing, error) {
	key := fmt.Sprintf(cacheKeyListing, market)
	if cached, ok := r.inmemoryCache.Get(key); ok {
		return cached.([]dto.Listing), nil
	}

	mktID, ok := krxMarketIDs[market]
	if !ok {
		return nil, fmt.Errorf("unknown market %q", market)
	}

	rows, err := r.query(ctx, url.Values{
		"bld":   {bldStockListing},
		"mktId": {mktID},
		"share": {"1"},
	})
	if err != nil {
		return nil, err
	}

	listings := make([]dto.Listing, 0, len(rows))
	for _, row := range rows {
		code := row[krxFieldShortCode]
		if code == "" {
			continue
		}
		listing := dto.Listing{
			Code:     code,
			FullCode: row[krxFieldFullCode],
			Name:     row[krxFieldName],
			Market:   market,
		}
		if listed, err := parseKRXDate(row[krxFieldListedDate]); err == nil {
			listing.ListedDate = &listed
		}
		listings = append(listings, listing)
		r.inmemoryCache.SetDefault(fmt.Sprintf(cacheKeyFullCode, code), listing.FullCode)
	}

	r.inmemoryCache.SetDefault(key, listings)
	r.log.DebugContext(ctx, "KRX listing loaded", logger.StringField("market", market), logger.IntField("count", len(listings)))
	return listings, nil
}

func (r *krxRepository) ListIndices(ctx context.Context, market string) ([]dto.Listing, error) {
	key := fmt.Sprintf(cacheKeyIndexList, market)
	if cached, ok := r.inmemoryCache.Get(key); ok {
		return cached.([]dto.Listing), nil
	}

	mktSel, ok := krxIndexMarketIDs[market]
	if !ok {
		return nil, fmt.Errorf("unknown market %q", market)
	}

	rows, err := r.query(ctx, url.Values{
		"bld":    {bldIndexFinder},
		"mktsel": {mktSel},
	})
	if err != nil {
		return nil, err
	}

	listings := make([]dto.Listing, 0, len(rows))
	for _, row := range rows {
		group, code := row[krxFieldIndexGroup], row[krxFieldIndexCode]
		if group == "" || code == "" {
			continue
		}
		listings = append(listings, dto.Listing{
			Code:   group + code,
			Name:   row[krxFieldIndexName],
			Market: market,
		})
	}

	r.inmemoryCache.SetDefault(key, listings)
	return listings, nil
}

func (r *krxRepository) GetStockOHLCV(ctx context.Context, ticker string, start, end time.Time) ([]dto.RawRow, error) {
	fullCode, err := r.resolveFullCode(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return r.querySeries(ctx, url.Values{
		"bld":       {bldStockOHLCV},
		"isuCd":     {fullCode},
		"strtDd":    {start.Format(krxParamDateLayout)},
		"endDd":     {end.Format(krxParamDateLayout)},
		"adjStkPrc": {"2"},
	})
}

func (r *krxRepository) GetInvestorNetValues(ctx context.Context, ticker string, start, end time.Time) ([]dto.RawRow, error) {
	fullCode, err := r.resolveFullCode(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return r.querySeries(ctx, url.Values{
		"bld":       {bldInvestorByDate},
		"isuCd":     {fullCode},
		"strtDd":    {start.Format(krxParamDateLayout)},
		"endDd":     {end.Format(krxParamDateLayout)},
		"inqTpCd":   {"2"},
		"trdVolVal": {"2"},
		"askBid":    {"3"},
	})
}

func (r *krxRepository) GetIndexOHLCV(ctx context.Context, code string, start, end time.Time) ([]dto.RawRow, error) {
	if len(code) < 2 {
		return nil, fmt.Errorf("invalid index code %q", code)
	}
	return r.querySeries(ctx, url.Values{
		"bld":     {bldIndexOHLCV},
		"indIdx":  {code[:1]},
		"indIdx2": {code[1:]},
		"strtDd":  {start.Format(krxParamDateLayout)},
		"endDd":   {end.Format(krxParamDateLayout)},
	})
}

// resolveFullCode maps a short ticker to the ISIN the series endpoints expect.
// Listings are cached, so this costs one request per market per hour at most.
func (r *krxRepository) resolveFullCode(ctx context.Context, ticker string) (string, error) {
	key := fmt.Sprintf(cacheKeyFullCode, ticker)
	if cached, ok := r.inmemoryCache.Get(key); ok {
		return cached.(string), nil
	}
	for _, market := range r.cfg.Ingest.Markets {
		if _, err := r.ListTickers(ctx, market); err != nil {
			return "", fmt.Errorf("resolve %s: %w", ticker, err)
		}
		if cached, ok := r.inmemoryCache.Get(key); ok {
			return cached.(string), nil
		}
	}
	return "", fmt.Errorf("ticker %s not found in KRX listings", ticker)
}

func (r *krxRepository) querySeries(ctx context.Context, form url.Values) ([]dto.RawRow, error) {
	rows, err := r.query(ctx, form)
	if err != nil {
		return nil, err
	}

	series := make([]dto.RawRow, 0, len(rows))
	for _, row := range rows {
		date, err := parseKRXDate(row[krxFieldDate])
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", krxFieldDate, row[krxFieldDate], err)
		}
		series = append(series, dto.RawRow{Date: date, Fields: row})
	}
	return series, nil
}

func (r *krxRepository) query(ctx context.Context, form url.Values) ([]map[string]string, error) {
	body, err := r.sendRequest(ctx, http.MethodPost, r.cfg.KRX.BaseURL+krxDataPath, form.Encode())
	if err != nil {
		return nil, err
	}

	var response krxResponse
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&response); err != nil {
		return nil, fmt.Errorf("decode KRX response for %s: %w", form.Get("bld"), err)
	}

	raw := response.Output
	if len(raw) == 0 {
		raw = response.Block1
	}

	rows := make([]map[string]string, 0, len(raw))
	for _, item := range raw {
		row := make(map[string]string, len(item))
		for k, v := range item {
			row[k] = stringify(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (r *krxRepository) sendRequest(ctx context.Context, method string, url string, form string) ([]byte, error) {
	fields := []zap.Field{
		zap.String("url", url),
		zap.String("payload", form),
	}

	if err := r.requestLimiter.Wait(ctx); err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to wait for request limit", fields...)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(form))
	if err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to create new http request", fields...)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("User-Agent", r.cfg.KRX.UserAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Referer", r.cfg.KRX.BaseURL+"/contents/MDC/MDI/mdiLoader/index.cmd")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to send request to KRX", fields...)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fields = append(fields, zap.Int("status_code", resp.StatusCode))
		r.log.ErrorContext(ctx, "Received non-OK response from KRX", fields...)
		return nil, fmt.Errorf("KRX returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fields = append(fields, zap.Error(err))
		r.log.ErrorContext(ctx, "Failed to read response body from KRX", fields...)
		return nil, err
	}

	return body, nil
}

func parseKRXDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range krxRowDateLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
