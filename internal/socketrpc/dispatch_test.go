package socketrpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/chime-experiment/alpenhorn-chime/internal/model"
)

type fakeController struct {
	imports []ImportParams
	scans   []string
	err     error
}

func (f *fakeController) Import(_ context.Context, node, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.imports = append(f.imports, ImportParams{Node: node, Path: path})
	return "imported", nil
}

func (f *fakeController) Scan(_ context.Context, node string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.scans = append(f.scans, node)
	return 3, nil
}

func (f *fakeController) Status(context.Context) (model.DaemonStatus, error) {
	return model.DaemonStatus{
		Host:      "cedar1",
		Nodes:     []model.StorageNode{{ID: 1, Name: "cedar_online"}},
		RowCounts: map[string]int64{"archive_file": 4},
	}, f.err
}

func (f *fakeController) Query(_ context.Context, sql string) ([]map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []map[string]any{{"sql": sql}}, nil
}

func callDirect(t *testing.T, ctl Controller, method string, params any) response {
	t.Helper()
	req := request{Version: jsonrpcVersion, ID: json.RawMessage(`7`), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.Fatal(err)
		}
		req.Params = raw
	}
	return NewServer("", ctl).call(context.Background(), req)
}

func TestCall_Import(t *testing.T) {
	ctl := &fakeController{}
	resp := callDirect(t, ctl, MethodImport, ImportParams{Node: "cedar_online", Path: "a/b.h5"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.ID) != "7" {
		t.Errorf("ID = %s, want 7", resp.ID)
	}
	var outcome string
	if err := json.Unmarshal(resp.Result, &outcome); err != nil {
		t.Fatal(err)
	}
	if outcome != "imported" {
		t.Errorf("outcome = %q", outcome)
	}
	if len(ctl.imports) != 1 || ctl.imports[0] != (ImportParams{Node: "cedar_online", Path: "a/b.h5"}) {
		t.Errorf("imports = %v", ctl.imports)
	}
}

func TestCall_Scan(t *testing.T) {
	ctl := &fakeController{}
	resp := callDirect(t, ctl, MethodScan, ScanParams{Node: "cedar_online"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if string(resp.Result) != "3" {
		t.Errorf("result = %s, want 3", resp.Result)
	}
	if len(ctl.scans) != 1 || ctl.scans[0] != "cedar_online" {
		t.Errorf("scans = %v", ctl.scans)
	}
}

func TestCall_Errors(t *testing.T) {
	tests := []struct {
		name   string
		ctl    *fakeController
		method string
		params any
		code   int
	}{
		{"unknown method", &fakeController{}, "tail", nil, CodeNoMethod},
		{"missing path", &fakeController{}, MethodImport, ImportParams{Node: "n"}, CodeBadParams},
		{"scan without node", &fakeController{}, MethodScan, ScanParams{}, CodeBadParams},
		{"missing params", &fakeController{}, MethodQuery, nil, CodeBadParams},
		{"wrong params shape", &fakeController{}, MethodQuery, []int{1}, CodeBadParams},
		{"application error", &fakeController{err: errors.New("boom")}, MethodQuery, QueryParams{SQL: "SELECT 1"}, CodeApplication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callDirect(t, tt.ctl, tt.method, tt.params)
			if resp.Error == nil {
				t.Fatal("expected error")
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code = %d, want %d (%s)", resp.Error.Code, tt.code, resp.Error.Message)
			}
		})
	}
}
