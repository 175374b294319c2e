package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/NovaUNL/Supernova-sub000/internal/api"
	"github.com/NovaUNL/Supernova-sub000/internal/status"
	"github.com/NovaUNL/Supernova-sub000/test-integration/sync-daemon/helpers"
)

var _ = Describe("Schedule Daemon", Label("daemon"), func() {
	var (
		tempDir  string
		upstream *helpers.FakeUpstream
	)

	BeforeEach(func() {
		tempDir = createTempDir("sync-daemon-test-")
		upstream = helpers.NewFakeUpstream()
		upstream.ServeEmptyCollections()
	})

	AfterEach(func() {
		upstream.Close()
		cleanupTempDir(tempDir)
	})

	startDaemon := func(configPath string) *helpers.DaemonTestHelper {
		daemon, err := helpers.NewDaemonTestHelper(ctx, configPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(daemon.StartServer()).To(Succeed())
		DeferCleanup(func() {
			_ = daemon.StopServer()
		})
		daemon.WaitForServerReady(10 * time.Second)
		return daemon
	}

	waitForPhase := func(daemon *helpers.DaemonTestHelper, mode string) *status.RunStatus {
		var run *status.RunStatus
		Eventually(func(g Gomega) {
			body, err := daemon.GetStatus()
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(body.Runs).To(HaveKey(mode))
			run = body.Runs[mode]
			g.Expect(run.Phase).To(Equal(status.SyncPhaseComplete))
		}, 15*time.Second, 100*time.Millisecond).Should(Succeed())
		return run
	}

	Context("with only slow runs scheduled", func() {
		It("should run a slow sync right after starting", func() {
			configPath := helpers.WriteConfigYAML(tempDir, upstream.URL(), "0s", "24h", "0s")
			daemon := startDaemon(configPath)

			run := waitForPhase(daemon, "slow")
			Expect(run.LastSuccess).NotTo(BeNil())
			Expect(run.Summary).NotTo(BeNil())
			Expect(run.RunID).NotTo(BeEmpty())

			Expect(upstream.Hits("/students/")).To(Equal(1))
			Expect(upstream.Hits("/teachers/")).To(Equal(1))
			Expect(upstream.Hits("/departments/")).To(Equal(1))
			Expect(upstream.Hits("/rooms/")).To(BeZero())

			Eventually(func() string {
				body, err := daemon.GetStatus()
				if err != nil {
					return ""
				}
				return body.State
			}, 5*time.Second, 100*time.Millisecond).Should(Equal("idle"))
		})

		It("should serve the status of one mode", func() {
			configPath := helpers.WriteConfigYAML(tempDir, upstream.URL(), "0s", "24h", "0s")
			daemon := startDaemon(configPath)
			waitForPhase(daemon, "slow")

			resp, err := daemon.Get("/status/slow")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			unknown, err := daemon.Get("/status/hourly")
			Expect(err).NotTo(HaveOccurred())
			defer unknown.Body.Close()
			Expect(unknown.StatusCode).To(Equal(http.StatusNotFound))

			ready, err := daemon.Get("/readiness")
			Expect(err).NotTo(HaveOccurred())
			defer ready.Body.Close()
			Expect(ready.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Context("with every mode scheduled", func() {
		It("should run full first and let it cover slow and fast", func() {
			configPath := helpers.WriteConfigYAML(tempDir, upstream.URL(), "1h", "24h", "168h")
			daemon := startDaemon(configPath)

			waitForPhase(daemon, "full")
			Expect(upstream.Hits("/rooms/")).To(Equal(1))
			Expect(upstream.Hits("/buildings/")).To(Equal(1))
			Expect(upstream.Hits("/courses/")).To(Equal(1))

			body, err := daemon.GetStatus()
			Expect(err).NotTo(HaveOccurred())
			Expect(body.Runs).NotTo(HaveKey("slow"))
			Expect(body.Runs).NotTo(HaveKey("fast"))
		})
	})

	Context("after a restart", func() {
		It("should not repeat a run that is not due", func() {
			configPath := helpers.WriteConfigYAML(tempDir, upstream.URL(), "0s", "0s", "168h")
			first := startDaemon(configPath)
			waitForPhase(first, "full")
			Expect(first.StopServer()).To(Succeed())

			second := startDaemon(configPath)
			var body *api.StatusResponse
			Eventually(func() error {
				var err error
				body, err = second.GetStatus()
				return err
			}, 5*time.Second, 100*time.Millisecond).Should(Succeed())
			Expect(body.Runs).To(HaveKey("full"))

			Consistently(func() int {
				return upstream.Hits("/rooms/")
			}, time.Second, 100*time.Millisecond).Should(Equal(1))
		})
	})
})
