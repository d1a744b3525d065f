//go:build integration || !unit

package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	server "vetreview/internal/adapters/http_server"
	"vetreview/internal/app"
	"vetreview/internal/domain"
	mysqlrepo "vetreview/internal/storage/mysql"
)

// ---------- stand-ins for the cloud services ----------
type staticImages struct{}

func (staticImages) Fetch(ctx context.Context, ref string) ([]byte, error) { return []byte(ref), nil }

type staticDetector struct{}

func (staticDetector) DetectText(ctx context.Context, img []byte) ([]domain.Detection, error) {
	if strings.Contains(string(img), "selfie") {
		return []domain.Detection{{Text: "cat", Confidence: 99}}, nil
	}
	return []domain.Detection{{Text: "RECEIPT", Confidence: 95}}, nil
}

type staticOCR struct{ text string }

func (o staticOCR) ExtractText(ctx context.Context, img []byte) ([]string, error) {
	return []string{o.text}, nil
}

type envelope struct {
	ErrorCode *int              `json:"errorCode"`
	Items     []json.RawMessage `json:"items"`
	Message   string            `json:"message"`
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=vetreview",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/vetreview?parseTime=true&charset=utf8mb4&loc=UTC",
		resource.GetPort("3306/tcp"))

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := mysqlrepo.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func post(t *testing.T, url, payload string) (int, envelope) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, env
}

// ---------- the test ----------
func TestHTTP_EndToEnd_SubmitAndList(t *testing.T) {
	db := startMySQL(t)

	res, err := db.Exec(`INSERT INTO clinics (name, sido_nm, sigun_nm, dong_nm, lot_address, road_address, rating, review_count)
		VALUES ('행복동물병원', '경기도', '수원시', '영통동', '경기도 수원시 영통구 영통동 1000-1', '경기도 수원시 영통구 봉영로 1600', 4.00, 2)`)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	clinicID, _ := res.LastInsertId()

	repo := mysqlrepo.New(db)
	classifier := app.NewReceiptClassifier(staticDetector{},
		staticOCR{text: "행복동물병원\n경기도 수원시 영통구 봉영로 1600\n합계 33,000원"},
		app.DefaultReceiptPolicy())
	submit := app.NewSubmissionService(repo, staticImages{}, classifier, domain.NewAddressMatcher(), nil,
		app.SubmissionOptions{AddressKeywords: []string{"경기도"}})

	srv := server.New()
	srv.MountHandlers(&server.Handlers{S: submit, Q: app.NewQueryService(repo, nil, 0), Ready: []server.Check{repo.Ping}})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	// accepted review updates the aggregate: (4*2+5)/3 = 4.33
	status, env := post(t, ts.URL+"/reviews",
		fmt.Sprintf(`{"receiptImage":"s3://receipts/a.jpg","id":%d,"userId":"u1","rate":5,"comment":"친절해요"}`, clinicID))
	if status != http.StatusOK || env.ErrorCode != nil || len(env.Items) != 1 {
		t.Fatalf("submit: status=%d env=%+v", status, env)
	}
	c, err := repo.GetClinic(context.Background(), clinicID)
	if err != nil {
		t.Fatal(err)
	}
	if c.Rating != 4.33 || c.ReviewCount != 3 {
		t.Fatalf("aggregate = %.2f/%d", c.Rating, c.ReviewCount)
	}

	// not a receipt: nothing written
	status, env = post(t, ts.URL+"/reviews",
		fmt.Sprintf(`{"receiptImage":"selfie.jpg","id":%d,"userId":"u2","rate":1}`, clinicID))
	if status != http.StatusBadRequest || env.ErrorCode == nil || *env.ErrorCode != 112 {
		t.Fatalf("not a receipt: status=%d env=%+v", status, env)
	}

	// unknown clinic
	status, env = post(t, ts.URL+"/reviews", `{"receiptImage":"r.jpg","id":999999,"userId":"u3","rate":3}`)
	if status != http.StatusBadRequest || *env.ErrorCode != 114 {
		t.Fatalf("unknown clinic: status=%d env=%+v", status, env)
	}

	// list
	resp, err := http.Get(fmt.Sprintf("%s/reviews?clinicId=%d", ts.URL, clinicID))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var list envelope
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || len(list.Items) != 1 || list.Message != "success" {
		t.Fatalf("list: status=%d env=%+v", resp.StatusCode, list)
	}
	var rv domain.Review
	_ = json.Unmarshal(list.Items[0], &rv)
	if rv.UserID != "u1" || rv.Comment != "친절해요" || rv.Rating != 5 {
		t.Fatalf("unexpected review %+v", rv)
	}
}
