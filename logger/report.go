package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type venueStat struct {
	requests int64
	warns    int64
	errors   int64
}

var (
	ordersPlaced    int64
	ordersCancelled int64
	ordersFailed    int64
	venues          sync.Map // map[string]*venueStat
)

func venueStats(venue string) *venueStat {
	v, _ := venues.LoadOrStore(venue, &venueStat{})
	return v.(*venueStat)
}

func recordWarn(venue string) {
	atomic.AddInt64(&venueStats(venue).warns, 1)
}

func recordError(venue string) {
	atomic.AddInt64(&venueStats(venue).errors, 1)
}

// IncrementOrderPlaced bumps the placed-order counter for the venue.
func IncrementOrderPlaced(venue string) {
	atomic.AddInt64(&ordersPlaced, 1)
	RecordVenueRequest(venue)
}

// IncrementOrderCancelled bumps the cancelled-order counter for the venue.
func IncrementOrderCancelled(venue string) {
	atomic.AddInt64(&ordersCancelled, 1)
	RecordVenueRequest(venue)
}

// IncrementOrderFailed bumps the failed-order counter for the venue.
func IncrementOrderFailed(venue string) {
	atomic.AddInt64(&ordersFailed, 1)
}

// RecordVenueRequest counts an outbound request to a venue.
func RecordVenueRequest(venue string) {
	atomic.AddInt64(&venueStats(venue).requests, 1)
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and execution statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()

	venueData := map[string]map[string]int64{}
	venues.Range(func(k, v any) bool {
		name := k.(string)
		vs := v.(*venueStat)
		venueData[name] = map[string]int64{
			"requests": atomic.LoadInt64(&vs.requests),
			"warns":    atomic.LoadInt64(&vs.warns),
			"errors":   atomic.LoadInt64(&vs.errors),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	placed := atomic.LoadInt64(&ordersPlaced)
	cancelled := atomic.LoadInt64(&ordersCancelled)
	failed := atomic.LoadInt64(&ordersFailed)

	fields := Fields{
		"orders_placed":    placed,
		"orders_cancelled": cancelled,
		"orders_failed":    failed,
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memStats.Used) / 1024 / 1024,
		"venues":           venueData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("OrdersPlaced"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(placed))},
		cwtypes.MetricDatum{MetricName: aws.String("OrdersCancelled"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(cancelled))},
		cwtypes.MetricDatum{MetricName: aws.String("OrdersFailed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(failed))},
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
	)

	for name, stats := range venueData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("VenueRequests"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Venue"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["requests"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("VenueErrors"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Venue"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["errors"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
