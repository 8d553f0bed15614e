package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bpsim/experiment"
	"github.com/sarchlab/bpsim/predictor"
	"github.com/sarchlab/bpsim/results"
	"github.com/sarchlab/bpsim/server"
	"github.com/sarchlab/bpsim/trace"
)

var _ = Describe("Server", func() {
	var (
		tempDir   string
		store     *results.Store
		collector *experiment.Collector
		ts        *httptest.Server
		loopTrace []byte
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "server-test")
		Expect(err).NotTo(HaveOccurred())

		store, err = results.NewStore(filepath.Join(tempDir, "runs.db"))
		Expect(err).NotTo(HaveOccurred())

		collector = experiment.NewCollector()
		ts = httptest.NewServer(server.New(server.Options{
			Harness:   experiment.DefaultConfig(),
			Store:     store,
			Collector: collector,
		}))

		var buf bytes.Buffer
		Expect(trace.Write(&buf, trace.GenerateLoop(5000))).To(Succeed())
		loopTrace = buf.Bytes()
	})

	AfterEach(func() {
		ts.Close()
		Expect(store.Close()).To(Succeed())
		_ = os.RemoveAll(tempDir)
	})

	post := func(query string, body []byte) *http.Response {
		resp, err := http.Post(ts.URL+"/api/evaluate"+query, "text/plain", bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer func() { _ = resp.Body.Close() }()
		Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	It("should list predictors", func() {
		resp, err := http.Get(ts.URL + "/api/predictors")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var body server.PredictorsResponse
		decode(resp, &body)
		Expect(body.Kinds).To(Equal(predictor.Kinds()))
		Expect(body.Config).To(Equal(predictor.DefaultConfig()))
	})

	It("should evaluate an uploaded trace", func() {
		resp := post("?predictor=2-bit&workload=loop", loopTrace)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var body server.EvaluateResponse
		decode(resp, &body)
		Expect(body.RunID).NotTo(BeEmpty())
		Expect(body.Results).To(HaveLen(1))
		Expect(body.Results[0].Workload).To(Equal("loop"))
		Expect(body.Results[0].Correct).To(Equal(uint64(3999)))
		Expect(body.Results[0].Total).To(Equal(uint64(5000)))
	})

	It("should run every predictor by default", func() {
		resp := post("?table_size=16&history_length=4&num_perceptrons=8", loopTrace)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var body server.EvaluateResponse
		decode(resp, &body)
		Expect(body.Results).To(HaveLen(3))
		Expect(body.Results[0].Workload).To(Equal("upload"))

		run, err := store.GetRun(context.Background(), body.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Predictor).To(Equal(predictor.Config{
			TableSize: 16, HistoryLength: 4, NumPerceptrons: 8,
		}))
	})

	It("should reject a malformed trace", func() {
		resp := post("", []byte("0x10 T\n0x20\n"))
		defer func() { _ = resp.Body.Close() }()
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("line 2"))
	})

	It("should reject invalid configurations", func() {
		resp := post("?table_size=0", loopTrace)
		_ = resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

		resp = post("?history_length=abc", loopTrace)
		_ = resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

		resp = post("?predictor=gshare", loopTrace)
		_ = resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should answer 400 for tables that cannot be allocated", func() {
		bare := httptest.NewServer(server.New(server.Options{}))
		defer bare.Close()

		for _, query := range []string{
			"?history_length=3000000000&num_perceptrons=3000000000",
			"?table_size=100000000000",
			"?predictor=perceptron&history_length=1024&num_perceptrons=16777216",
		} {
			resp, err := http.Post(bare.URL+"/api/evaluate"+query, "text/plain",
				bytes.NewReader(loopTrace))
			Expect(err).NotTo(HaveOccurred())

			data, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest), query)
			Expect(string(data)).To(ContainSubstring("invalid predictor configuration"))
		}

		resp, err := http.Get(bare.URL + "/api/predictors")
		Expect(err).NotTo(HaveOccurred())
		_ = resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("should serve stored runs", func() {
		resp := post("?predictor=hybrid", loopTrace)
		var evaluated server.EvaluateResponse
		decode(resp, &evaluated)

		resp, err := http.Get(ts.URL + "/api/runs")
		Expect(err).NotTo(HaveOccurred())
		var runs []results.Run
		decode(resp, &runs)
		Expect(runs).To(HaveLen(1))
		Expect(runs[0].ID).To(Equal(evaluated.RunID))

		resp, err = http.Get(ts.URL + "/api/runs/" + evaluated.RunID)
		Expect(err).NotTo(HaveOccurred())
		var run results.Run
		decode(resp, &run)
		Expect(run.Results).To(Equal(evaluated.Results))
	})

	It("should return 404 for unknown runs", func() {
		resp, err := http.Get(ts.URL + "/api/runs/nope")
		Expect(err).NotTo(HaveOccurred())
		_ = resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should expose metrics", func() {
		resp := post("?predictor=2-bit&workload=loop", loopTrace)
		_ = resp.Body.Close()

		resp, err := http.Get(ts.URL + "/metrics")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(
			`bpsim_branches_total{outcome="correct",predictor="2-bit",workload="loop"} 3999`))
	})

	It("should reject oversized traces", func() {
		small := httptest.NewServer(server.New(server.Options{MaxTraceBytes: 16}))
		defer small.Close()

		resp, err := http.Post(small.URL+"/api/evaluate", "text/plain",
			strings.NewReader(string(loopTrace)))
		Expect(err).NotTo(HaveOccurred())
		_ = resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
	})

	It("should not route runs without a store", func() {
		bare := httptest.NewServer(server.New(server.Options{}))
		defer bare.Close()

		resp, err := http.Get(bare.URL + "/api/runs")
		Expect(err).NotTo(HaveOccurred())
		_ = resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})
})
