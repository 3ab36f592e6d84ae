package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a custom registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then its collectors are registered there", func() {
				So(manager, ShouldNotBeNil)
				manager.reconstructions.WithLabelValues("stored").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldNotBeEmpty)
			})
		})

		Convey("When creating with naming options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithMetricPrefix("p"),
				WithHistogramBuckets([]float64{1, 2}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.queueDeadLetters.Inc()

			Convey("Then metric names and labels follow them", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_unit_p_queue_dead_letters_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When metrics are disabled", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(registry))

			Convey("Then nothing is registered on the given registry", func() {
				manager.queueDeadLetters.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Reconstruction outcomes are counted by label", func() {
			before := testutil.ToFloat64(globalManager.reconstructions.WithLabelValues("duplicate"))
			RecordReconstruction("duplicate")
			RecordReconstruction("duplicate")
			So(testutil.ToFloat64(globalManager.reconstructions.WithLabelValues("duplicate")), ShouldEqual, before+2)
		})

		Convey("Part corrections ignore non-positive counts", func() {
			before := testutil.ToFloat64(globalManager.partCorrections)
			RecordPartCorrections(0)
			RecordPartCorrections(-1)
			RecordPartCorrections(3)
			So(testutil.ToFloat64(globalManager.partCorrections), ShouldEqual, before+3)
		})

		Convey("Gauges take the last value", func() {
			UpdateQueueSize(7)
			UpdateQueueSize(3)
			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
			UpdateCircuitBreakerState("chaindata", 2)
			So(testutil.ToFloat64(globalManager.breakerState.WithLabelValues("chaindata")), ShouldEqual, 2)
		})

		Convey("Recording functions do not panic", func() {
			So(func() {
				RecordReconstructionError("fetching")
				RecordReconstructionLatency(12)
				RecordMidEvolution()
				RecordNegativeBreedCount()
				RecordActivitiesReordered()
				RecordXPUnderflow()
				RecordSaleDuplicate()
				UpdateQueueCapacity(100)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordRedelivery()
				RecordDeadLetter()
				UpdateWorkerCount(5)
				UpdateWorkerActiveCount(1)
				RecordWorkerProcessingLatency(3)
				RecordWorkerError()
				RecordCatalogRefresh("updated")
				UpdateCatalogParts(900)
				RecordCatalogMiss()
				RecordProviderRequest("get_axie", "ok")
				RecordProviderLatency("get_axie", 40)
				RecordProviderRetry("get_axie")
				RecordStoreLatency("insert", 1)
				RecordStoreDuplicate()
				RecordHTTPRequest("/sales", "POST", "202")
				RecordHTTPRequestDuration("/sales", "POST", "202", 2)
			}, ShouldNotPanic)
		})

		Convey("The exposed registry carries the service namespace", func() {
			RecordDeadLetter()
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "axiesales_sales_"), ShouldBeTrue)
			}
		})
	})
}
