package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// getBaseURL returns the base URL for API calls.
// Uses REDLINE_BASE_URL env var if set (for container tests),
// otherwise defaults to localhost:8080.
func getBaseURL() string {
	if url := os.Getenv("REDLINE_BASE_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

// httpClient creates an HTTP client with sensible defaults.
func httpClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
	}
}

// doRequest performs an HTTP request and returns the response.
func doRequest(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	url := getBaseURL() + path
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return httpClient().Do(req)
}

// parseResponse parses JSON response into target.
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

var _ = Describe("HTTP Integration Tests", Ordered, func() {
	BeforeAll(func() {
		// Check if the server is reachable
		resp, err := doRequest("GET", "/healthz", nil)
		if err != nil {
			Skip(fmt.Sprintf("Server not reachable at %s: %v", getBaseURL(), err))
		}
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	Describe("Health Check", func() {
		It("should return healthy status", func() {
			resp, err := doRequest("GET", "/healthz", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("Distribution pools", func() {
		It("should save a pool and rotate its segments", func() {
			resp, err := doRequest("PUT", "/v1/pools/http_test_pool", map[string]interface{}{
				"segments": []string{"h1", "h2"},
			})
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var picked []string
			for i := 0; i < 4; i++ {
				resp, err := doRequest("POST", "/v1/pools/http_test_pool/next", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result struct {
					Data struct {
						Segment string `json:"segment"`
					} `json:"data"`
				}
				Expect(parseResponse(resp, &result)).To(Succeed())
				picked = append(picked, result.Data.Segment)
			}
			Expect(picked).To(Equal([]string{"h1", "h2", "h1", "h2"}))
		})
	})

	Describe("Messages", func() {
		It("should queue and dequeue a segment message", func() {
			resp, err := doRequest("POST", "/v1/messages", map[string]interface{}{
				"payload": map[string]string{"name": "http_message"},
				"segment": "http_seg",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var created struct {
				Data struct {
					ID      string `json:"id"`
					Segment string `json:"segment"`
				} `json:"data"`
			}
			Expect(parseResponse(resp, &created)).To(Succeed())
			Expect(created.Data.Segment).To(Equal("http_seg"))

			resp, err = doRequest("POST", "/v1/messages/dequeue?segment=http_seg", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var dequeued struct {
				Data struct {
					Key struct {
						ID string `json:"id"`
					} `json:"key"`
				} `json:"data"`
			}
			Expect(parseResponse(resp, &dequeued)).To(Succeed())
			Expect(dequeued.Data.Key.ID).To(Equal(created.Data.ID))

			resp, err = doRequest("POST", "/v1/messages/ack", map[string]string{
				"id":      created.Data.ID,
				"segment": "http_seg",
			})
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		})
	})
})
