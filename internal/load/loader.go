// Package load bulk-ingests historical bhavcopy CSV files from S3 into the
// tick store. The simulator only ever extends what this loader populates.
package load

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/tradingzone/trade-sim/internal/store"
	"github.com/tradingzone/trade-sim/internal/tick"
)

// ObjectClient is the slice of the S3 API the loader needs.
type ObjectClient interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Report summarizes one load run.
type Report struct {
	Files   int `json:"files"`
	Rows    int `json:"rows"`
	Skipped int `json:"skipped"`
}

// Loader streams CSV objects under a bucket prefix into the tick store.
type Loader struct {
	s3c    ObjectClient
	bucket string
	prefix string
	store  store.TickStore
	log    *zap.Logger
}

// New creates a loader for the given bucket and key prefix.
func New(s3c ObjectClient, bucket, prefix string, st store.TickStore, log *zap.Logger) *Loader {
	return &Loader{s3c: s3c, bucket: bucket, prefix: prefix, store: st, log: log}
}

// Run lists every object under the prefix and ingests each in turn.
// A failing object is logged and skipped; the run continues.
func (l *Loader) Run(ctx context.Context) (*Report, error) {
	l.log.Info("bulk load starting", zap.String("bucket", l.bucket), zap.String("prefix", l.prefix))

	report := &Report{}
	var token *string
	for {
		page, err := l.s3c.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(l.bucket),
			Prefix:            aws.String(l.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return report, fmt.Errorf("list objects: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".csv") && !strings.HasSuffix(key, ".csv.gz") {
				continue
			}
			rows, skipped, err := l.loadObject(ctx, key)
			if err != nil {
				l.log.Error("object load failed", zap.String("key", key), zap.Error(err))
				continue
			}
			report.Files++
			report.Rows += rows
			report.Skipped += skipped
			l.log.Info("object loaded", zap.String("key", key), zap.Int("rows", rows), zap.Int("skipped", skipped))
		}

		if page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
	}

	l.log.Info("bulk load completed",
		zap.Int("files", report.Files), zap.Int("rows", report.Rows), zap.Int("skipped", report.Skipped))
	return report, nil
}

func (l *Loader) loadObject(ctx context.Context, key string) (rows, skipped int, err error) {
	out, err := l.s3c.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()

	var body io.Reader = out.Body
	if strings.HasSuffix(key, ".gz") {
		gz, err := gzip.NewReader(out.Body)
		if err != nil {
			return 0, 0, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	return l.ingest(ctx, body)
}

// ingest reads one CSV stream. The first row is assumed to be the header.
func (l *Loader) ingest(ctx context.Context, body io.Reader) (rows, skipped int, err error) {
	r := csv.NewReader(body)
	r.FieldsPerRecord = -1

	header := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			return rows, skipped, nil
		}
		if err != nil {
			return rows, skipped, fmt.Errorf("read csv: %w", err)
		}
		if header {
			header = false
			continue
		}

		t, err := ParseRow(record)
		if err != nil {
			l.log.Debug("skipping csv row", zap.Error(err))
			skipped++
			continue
		}

		payload, err := tick.Encode(t)
		if err != nil {
			skipped++
			continue
		}
		if err := l.store.Append(ctx, t.TckrSymb, t.Score(), payload, store.Always); err != nil {
			l.log.Warn("row append failed", zap.String("symbol", t.TckrSymb), zap.Error(err))
			skipped++
			continue
		}
		if err := l.store.SetSymbolDate(ctx, t.TckrSymb, t.TradDt.Format(tick.Layout)); err != nil {
			l.log.Warn("registry update failed", zap.String("symbol", t.TckrSymb), zap.Error(err))
		}
		rows++
	}
}

// bhavcopy column order.
const (
	colTradDt = iota
	colBizDt
	colSgmt
	colSrc
	colFinInstrmTp
	colFinInstrmID
	colISIN
	colTckrSymb
	colSctySrs
	colXpryDt
	colFininstrmActlXpryDt
	colStrkPric
	colOptnTp
	colFinInstrmNm
	colOpnPric
	colHghPric
	colLwPric
	colClsPric
	colLastPric
	colPrvsClsgPric
	colUndrlygPric
	colSttlmPric
	colOpnIntrst
	colChngInOpnIntrst
	colTtlTradgVol
	colTtlTrfVal
	colTtlNbOfTxsExctd
	colSsnID
	colNewBrdLotQty
	colRmks
	colCount
)

// ParseRow converts one bhavcopy CSV record into a Tick. Trailing reserved
// columns are optional.
func ParseRow(record []string) (*tick.Tick, error) {
	if len(record) < colCount {
		return nil, fmt.Errorf("short row: %d columns", len(record))
	}

	tradDt, err := parseCSVTime(record[colTradDt])
	if err != nil {
		return nil, fmt.Errorf("tradDt: %w", err)
	}
	symbol := strings.TrimSpace(record[colTckrSymb])
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}

	t := &tick.Tick{
		TradDt:          tick.NewDateTime(tradDt),
		Sgmt:            strings.TrimSpace(record[colSgmt]),
		Src:             strings.TrimSpace(record[colSrc]),
		FinInstrmTp:     strings.TrimSpace(record[colFinInstrmTp]),
		ISIN:            strings.TrimSpace(record[colISIN]),
		TckrSymb:        symbol,
		SctySrs:         strings.TrimSpace(record[colSctySrs]),
		OptnTp:          strings.TrimSpace(record[colOptnTp]),
		FinInstrmNm:     strings.TrimSpace(record[colFinInstrmNm]),
		OpnIntrst:       strings.TrimSpace(record[colOpnIntrst]),
		ChngInOpnIntrst: strings.TrimSpace(record[colChngInOpnIntrst]),
		TtlNbOfTxsExctd: strings.TrimSpace(record[colTtlNbOfTxsExctd]),
		SsnID:           strings.TrimSpace(record[colSsnID]),
		Rmks:            strings.TrimSpace(record[colRmks]),
	}

	if bizDt, err := parseCSVTime(record[colBizDt]); err == nil {
		t.BizDt = tick.NewDateTime(bizDt)
	} else {
		t.BizDt = t.TradDt
	}
	if v, err := parseCSVTime(record[colXpryDt]); err == nil {
		dt := tick.NewDateTime(v)
		t.XpryDt = &dt
	}
	if v, err := parseCSVTime(record[colFininstrmActlXpryDt]); err == nil {
		dt := tick.NewDateTime(v)
		t.FininstrmActlXpryDt = &dt
	}

	t.FinInstrmID = parseInt(record[colFinInstrmID])
	t.StrkPric = parseFloat(record[colStrkPric])
	t.OpnPric = parseFloat(record[colOpnPric])
	t.HghPric = parseFloat(record[colHghPric])
	t.LwPric = parseFloat(record[colLwPric])
	t.ClsPric = parseFloat(record[colClsPric])
	t.LastPric = parseFloat(record[colLastPric])
	t.PrvsClsgPric = parseFloat(record[colPrvsClsgPric])
	t.UndrlygPric = parseFloat(record[colUndrlygPric])
	t.SttlmPric = parseFloat(record[colSttlmPric])
	t.TtlTradgVol = parseInt(record[colTtlTradgVol])
	t.TtlTrfVal = parseFloat(record[colTtlTrfVal])
	t.NewBrdLotQty = parseInt(record[colNewBrdLotQty])

	// Derived fields come from the source data when present; the simulator
	// recomputes them on every price mutation anyway.
	tick.ApplyChange(t, tick.DefaultPrecision)
	return t, nil
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty")
	}
	if t, err := time.ParseInLocation(tick.Layout, s, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return nil
	}
	return tick.Float(v)
}

func parseInt(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	var v int64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return nil
	}
	return tick.Int(v)
}
