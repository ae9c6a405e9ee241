package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budgets/internal/core"
	"budgets/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return newWithService(svc, "sheet-id", "Ledger")
}

func TestRowValues(t *testing.T) {
	row := sheets.LedgerRow{
		Date:        time.Date(2025, 2, 3, 23, 30, 0, 0, time.FixedZone("X", -2*3600)),
		Budget:      "Groceries",
		Description: "market",
		Emoji:       "🛒",
		Amount:      core.Money{Cents: -5005},
		Event:       "transaction.deleted",
	}
	got := rowValues(row)
	want := []any{"2025-02-04", "Groceries", "market", "🛒", "-50.05", "transaction.deleted"}
	if len(got) != len(want) {
		t.Fatalf("got %d columns, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestColumnRange(t *testing.T) {
	if got := columnRange("Ledger"); got != "Ledger!A:F" {
		t.Fatalf("columnRange = %q", got)
	}
}

func TestAppendRow(t *testing.T) {
	var gotBody gsheet.ValueRange
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":append") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if !strings.Contains(r.URL.Path, "/spreadsheets/sheet-id/values/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"updates":{"updatedRange":"Ledger!A7:F7"}}`))
	})

	ref, err := c.AppendRow(context.Background(), sheets.LedgerRow{
		Date:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Budget: "Rent",
		Amount: core.Money{Cents: 90000},
		Event:  "transaction.created",
	})
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if ref != "Ledger!A7:F7" {
		t.Fatalf("ref = %q", ref)
	}
	if !strings.Contains(gotQuery, "valueInputOption=USER_ENTERED") {
		t.Errorf("missing value input option in %q", gotQuery)
	}
	if len(gotBody.Values) != 1 || gotBody.Values[0][4] != "900.00" {
		t.Errorf("unexpected body: %+v", gotBody.Values)
	}
}

func TestAppendRowError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	})
	if _, err := c.AppendRow(context.Background(), sheets.LedgerRow{}); err == nil {
		t.Fatal("expected error from a 403 response")
	}
}

func TestEnsureHeader(t *testing.T) {
	tests := []struct {
		name       string
		existing   string
		wantUpdate bool
	}{
		{"empty sheet", `{"range":"Ledger!A1:F1"}`, true},
		{"header present", `{"range":"Ledger!A1:F1","values":[["date","budget"]]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated := false
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				switch r.Method {
				case http.MethodGet:
					w.Write([]byte(tt.existing))
				case http.MethodPut:
					updated = true
					w.Write([]byte(`{"updatedRange":"Ledger!A1:F1"}`))
				default:
					t.Errorf("unexpected method %s", r.Method)
				}
			})
			if err := c.EnsureHeader(context.Background()); err != nil {
				t.Fatalf("EnsureHeader: %v", err)
			}
			if updated != tt.wantUpdate {
				t.Fatalf("updated = %v, want %v", updated, tt.wantUpdate)
			}
		})
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without spreadsheet ID")
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if _, err := loadCredentials(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without credentials")
	}
	got, err := loadCredentials(context.Background(), Config{ServiceAccountJSON: ` {"type":"service_account"} `})
	if err != nil || string(got) != `{"type":"service_account"}` {
		t.Fatalf("inline credentials = %q, %v", got, err)
	}
}
