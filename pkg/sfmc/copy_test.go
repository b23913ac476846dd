package sfmc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copySoapServer routes by request shape instead of replaying a script:
// the create calls of one batch arrive concurrently, in no fixed order.
func copySoapServer(t *testing.T, sourceRecords, destRecords []string, failName string) (*httptest.Server, *[]string) {
	t.Helper()

	var mu sync.Mutex
	var creates []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := string(body)
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")

		switch {
		case strings.Contains(req, "RetrieveRequest"):
			// Source and destination fetches are told apart by the folder
			// id in the filter.
			if strings.Contains(req, "<Value>111</Value>") {
				fmt.Fprint(w, retrieveEnvelope("OK", "", sourceRecords...))
			} else {
				fmt.Fprint(w, retrieveEnvelope("OK", "", destRecords...))
			}
		case strings.Contains(req, "CreateRequest"):
			mu.Lock()
			creates = append(creates, req)
			mu.Unlock()
			if failName != "" && strings.Contains(req, fmt.Sprintf("<Name>%s</Name>", failName)) {
				fmt.Fprint(w, `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>`+
					`<CreateResponse xmlns="http://exacttarget.com/wsdl/partnerAPI">`+
					`<Results><StatusCode>Error</StatusCode><StatusMessage>Create failed for `+failName+`</StatusMessage></Results>`+
					`<OverallStatus>Error</OverallStatus>`+
					`</CreateResponse></soap:Body></soap:Envelope>`)
				return
			}
			fmt.Fprint(w, `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>`+
				`<CreateResponse xmlns="http://exacttarget.com/wsdl/partnerAPI">`+
				`<Results><StatusCode>OK</StatusCode><NewID>1</NewID></Results>`+
				`<OverallStatus>OK</OverallStatus>`+
				`</CreateResponse></soap:Body></soap:Envelope>`)
		default:
			http.Error(w, "unexpected request", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &creates
}

func TestCopySoapCollectsFailuresWithoutAborting(t *testing.T) {
	var exchanges atomic.Int32
	auth := newAuthServer(t, &exchanges)
	soap, creates := copySoapServer(t,
		[]string{"a", "b", "c", "d", "e"},
		nil,
		"c", // fails on create
	)
	client := newTestClient(t, auth.URL, soap.URL, "")

	summary, err := client.Copy(context.Background(), "DataExtension", "111", "222")
	require.Error(t, err)

	var partial *PartialCopyError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Failures, 1)
	assert.Equal(t, "c", partial.Failures[0].Name)
	assert.Contains(t, partial.Failures[0].Err.Error(), "Create failed for c")

	require.NotNil(t, summary)
	assert.Equal(t, 4, summary.Succeeded, "one bad record must not abort the batch")
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 5, summary.Total(), "every source record is accounted for")
	assert.Len(t, *creates, 5)
}

func TestCopySoapRewritesFolderAndKey(t *testing.T) {
	var exchanges atomic.Int32
	auth := newAuthServer(t, &exchanges)
	soap, creates := copySoapServer(t, []string{"solo", "dup"}, []string{"dup"}, "")
	client := newTestClient(t, auth.URL, soap.URL, "")

	summary, err := client.Copy(context.Background(), "DataExtension", "111", "222")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped, "name present in the destination is skipped")

	require.Len(t, *creates, 1)
	req := (*creates)[0]
	assert.Contains(t, req, "<Name>solo</Name>", "the skipped record is never sent")
	assert.Contains(t, req, "<CategoryID>222</CategoryID>", "folder key points at the destination")
	assert.Contains(t, req, "<CustomerKey>", "clone gets a fresh key")
	assert.NotContains(t, req, "<ObjectID>", "server-assigned identity is dropped")
}

func TestCopyRestSkipsExistingAndShapesPayload(t *testing.T) {
	var exchanges atomic.Int32
	auth := newAuthServer(t, &exchanges)

	var mu sync.Mutex
	var posts []map[string]any

	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			posts = append(posts, body)
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":9}`)
			return
		}

		if strings.Contains(r.URL.Query().Get("$filter"), "=111") {
			fmt.Fprint(w, `{"count":2,"page":1,"pageSize":50,"items":[`+
				`{"id":5,"customerKey":"orig-key","name":"one","assetType":{"id":196,"name":"textblock"},"content":"<p>hi</p>","category":{"id":111}},`+
				`{"id":6,"customerKey":"orig-key-2","name":"two","assetType":{"id":196,"name":"textblock"},"content":"<p>bye</p>","category":{"id":111}}]}`)
			return
		}
		fmt.Fprint(w, `{"count":1,"page":1,"pageSize":50,"items":[{"id":7,"name":"one","category":{"id":222}}]}`)
	}))
	t.Cleanup(rest.Close)

	client := newTestClient(t, auth.URL, "", rest.URL)

	summary, err := client.Copy(context.Background(), "Asset", "111", "222")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped, "name present in the destination is skipped")

	require.Len(t, posts, 1)
	body := posts[0]
	assert.Equal(t, "two", body["name"])
	assert.Equal(t, "<p>bye</p>", body["content"])

	category, ok := body["category"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 222, category["id"], "folder key is rewritten to the destination")

	key, _ := body["customerKey"].(string)
	assert.Len(t, key, 36, "clone gets a generated key")
	assert.NotEqual(t, "orig-key-2", key)
	assert.NotContains(t, body, "id", "server-assigned identity is dropped")
}

func TestCopyUnknownObject(t *testing.T) {
	var exchanges atomic.Int32
	auth := newAuthServer(t, &exchanges)
	client := newTestClient(t, auth.URL, "", "")

	_, err := client.Copy(context.Background(), "NoSuchObject", "1", "2")
	var unknown *UnknownObjectError
	require.ErrorAs(t, err, &unknown)
}

func TestCopyRejectsUnscopedObject(t *testing.T) {
	var exchanges atomic.Int32
	auth := newAuthServer(t, &exchanges)
	client := newTestClient(t, auth.URL, "", "")

	// Subscriber has no folder key in the catalog.
	_, err := client.Copy(context.Background(), "Subscriber", "1", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "folder")
}

func TestCopyEmptySourceFolderFails(t *testing.T) {
	var exchanges atomic.Int32
	auth := newAuthServer(t, &exchanges)
	soap, _ := copySoapServer(t, nil, nil, "")
	client := newTestClient(t, auth.URL, soap.URL, "")

	_, err := client.Copy(context.Background(), "DataExtension", "111", "222")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no DataExtension records")

	var partial *PartialCopyError
	assert.False(t, errors.As(err, &partial), "an empty source is a batch-level failure")
}
