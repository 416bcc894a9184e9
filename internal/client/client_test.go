package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/markis/coach/internal/client"
)

type capturedRequest struct {
	method string
	header http.Header
	body   string
}

var _ = Describe("Client", func() {
	var (
		requests chan capturedRequest
		handler  http.HandlerFunc
		server   *httptest.Server
	)

	BeforeEach(func() {
		requests = make(chan capturedRequest, 1)
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, "data: hi\n\ndata: [DONE]\n\n")
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			requests <- capturedRequest{method: r.Method, header: r.Header.Clone(), body: string(body)}
			handler(w, r)
		}))
		DeferCleanup(server.Close)
	})

	Describe("Stream", func() {
		It("posts the query as JSON and returns the event stream", func() {
			c := client.New(server.URL + "/api/chat")

			body, err := c.Stream(context.Background(), `What about "essays"?`)
			Expect(err).NotTo(HaveOccurred())
			defer body.Close()

			data, err := io.ReadAll(body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("data: hi\n\ndata: [DONE]\n\n"))

			var req capturedRequest
			Expect(requests).To(Receive(&req))
			Expect(req.method).To(Equal(http.MethodPost))
			Expect(req.body).To(MatchJSON(`{"query":"What about \"essays\"?"}`))
			Expect(req.header.Get("Content-Type")).To(Equal("application/json"))
			Expect(req.header.Get("Accept")).To(Equal("text/event-stream"))
			Expect(req.header.Get("Authorization")).To(BeEmpty())
		})

		It("sends configured headers and the bearer token", func() {
			c := client.New(server.URL,
				client.WithHeaders(map[string]string{"X-Client": "coach"}),
				client.WithToken("secret"),
			)

			body, err := c.Stream(context.Background(), "q")
			Expect(err).NotTo(HaveOccurred())
			body.Close()

			var req capturedRequest
			Expect(requests).To(Receive(&req))
			Expect(req.header.Get("X-Client")).To(Equal("coach"))
			Expect(req.header.Get("Authorization")).To(Equal("Bearer secret"))
		})

		It("returns a status error for non-200 responses", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "rate limited", http.StatusTooManyRequests)
			}
			c := client.New(server.URL)

			body, err := c.Stream(context.Background(), "q")
			Expect(body).To(BeNil())

			var statusErr *client.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(statusErr.Body).To(ContainSubstring("rate limited"))
		})

		It("fails when the service is unreachable", func() {
			c := client.New("http://127.0.0.1:1")

			_, err := c.Stream(context.Background(), "q")
			Expect(err).To(HaveOccurred())
		})

		It("honors a cancelled context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			c := client.New(server.URL)

			_, err := c.Stream(ctx, "q")
			Expect(err).To(MatchError(context.Canceled))
		})
	})
})
