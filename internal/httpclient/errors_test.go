package httpclient_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/NovaUNL/Supernova-sub000/internal/httpclient"
)

var _ = Describe("HTTPError", func() {
	Describe("NewHTTPError", func() {
		It("should create HTTPError with all fields", func() {
			err := httpclient.NewHTTPError(404, "http://upstream/class/7", "Not Found")
			Expect(err).To(HaveOccurred())

			var httpErr *httpclient.HTTPError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(httpErr.StatusCode).To(Equal(404))
			Expect(httpErr.URL).To(Equal("http://upstream/class/7"))
			Expect(httpErr.Message).To(Equal("Not Found"))
		})

		It("should format error message correctly", func() {
			err := httpclient.NewHTTPError(503, "http://upstream/departments/", "Service Unavailable")
			Expect(err.Error()).To(Equal("GET http://upstream/departments/: status 503: Service Unavailable"))
		})

		It("should leave out an empty message", func() {
			err := httpclient.NewHTTPError(404, "http://upstream", "")
			Expect(err.Error()).To(Equal("GET http://upstream: status 404"))
		})

		DescribeTable("should keep the message of each status",
			func(statusCode int, message string) {
				err := httpclient.NewHTTPError(statusCode, "http://upstream", message)
				Expect(err.Error()).To(ContainSubstring(fmt.Sprintf("status %d", statusCode)))
				Expect(err.Error()).To(ContainSubstring(message))
			},
			Entry("bad request", 400, "Bad Request"),
			Entry("not found", 404, "Not Found"),
			Entry("too many requests", 429, "Too Many Requests"),
			Entry("internal error", 500, "Internal Server Error"),
			Entry("bad gateway", 502, "Bad Gateway"),
		)
	})

	Describe("StatusCode", func() {
		It("should extract the status of a wrapped HTTPError", func() {
			err := fmt.Errorf("fetch class 7: %w", httpclient.NewHTTPError(502, "http://upstream/class/7", "Bad Gateway"))
			Expect(httpclient.StatusCode(err)).To(Equal(502))
		})

		It("should return zero for other errors", func() {
			Expect(httpclient.StatusCode(errors.New("connection refused"))).To(BeZero())
			Expect(httpclient.StatusCode(nil)).To(BeZero())
		})
	})
})
