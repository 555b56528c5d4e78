package models

import (
	"errors"
	"testing"
)

func TestWorkRecord(t *testing.T) {
	t.Run("FieldString", func(t *testing.T) {
		tc := []struct {
			name   string
			fields map[string]any
			field  string
			want   string
			wantOK bool
		}{
			{name: "plain string", fields: map[string]any{FieldTitle: "Epic A"}, field: FieldTitle, want: "Epic A", wantOK: true},
			{name: "missing", fields: map[string]any{}, field: FieldTitle, want: "", wantOK: false},
			{name: "nil value", fields: map[string]any{FieldTitle: nil}, field: FieldTitle, want: "", wantOK: false},
			{
				name:   "identity uses display name",
				fields: map[string]any{FieldAssignedTo: map[string]any{"displayName": "Alice", "uniqueName": "alice@example.com"}},
				field:  FieldAssignedTo,
				want:   "Alice",
				wantOK: true,
			},
			{
				name:   "identity falls back to unique name",
				fields: map[string]any{FieldAssignedTo: map[string]any{"uniqueName": "alice@example.com"}},
				field:  FieldAssignedTo,
				want:   "alice@example.com",
				wantOK: true,
			},
			{name: "number", fields: map[string]any{FieldRemainingWork: 2.5}, field: FieldRemainingWork, want: "2.5", wantOK: true},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				rec := WorkRecord{Fields: tt.fields}
				got, ok := rec.FieldString(tt.field)
				if got != tt.want || ok != tt.wantOK {
					t.Errorf("FieldString() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
				}
			})
		}
	})

	t.Run("ForwardRelations", func(t *testing.T) {
		rec := WorkRecord{
			Relations: []Relation{
				{Kind: RelationReverse, URL: "https://tfs/_apis/wit/workItems/9"},
				{Kind: RelationForward, URL: "https://tfs/_apis/wit/workItems/2"},
				{Kind: "System.LinkTypes.Related", URL: "https://tfs/_apis/wit/workItems/3"},
				{Kind: RelationForward, URL: "https://tfs/_apis/wit/workItems/4"},
			},
		}

		got := rec.ForwardRelations()
		if len(got) != 2 {
			t.Fatalf("expected 2 forward relations, got %d", len(got))
		}
		if got[0].URL != "https://tfs/_apis/wit/workItems/2" || got[1].URL != "https://tfs/_apis/wit/workItems/4" {
			t.Errorf("forward relations out of order: %+v", got)
		}
	})
}

func TestRelationTargetID(t *testing.T) {
	tc := []struct {
		name    string
		url     string
		want    int
		wantErr bool
	}{
		{name: "api url", url: "https://dev.azure.com/org/_apis/wit/workItems/42", want: 42},
		{name: "trailing slash", url: "https://tfs/DefaultCollection/_apis/wit/workItems/7/", want: 7},
		{name: "no segment", url: "nothing", wantErr: true},
		{name: "non numeric", url: "https://tfs/_apis/wit/workItems/abc", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Relation{URL: tt.url}.TargetID()
			if (err != nil) != tt.wantErr {
				t.Fatalf("TargetID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("TargetID() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMigrationRun(t *testing.T) {
	src := Endpoint{URL: "https://tfs.example.com/tfs/DefaultCollection", Project: "Alpha"}
	dst := Endpoint{URL: "https://dev.azure.com/org", Project: "Beta"}

	t.Run("Validate", func(t *testing.T) {
		if err := NewMigrationRun(1, src, dst, "mapping").Validate(); err != nil {
			t.Errorf("expected valid run, got %v", err)
		}
		if err := NewMigrationRun(1, Endpoint{}, dst, "mapping").Validate(); err == nil {
			t.Error("expected error for missing source")
		}
		if err := NewMigrationRun(1, src, Endpoint{URL: "x"}, "mapping").Validate(); err == nil {
			t.Error("expected error for missing destination project")
		}
	})

	t.Run("Finish", func(t *testing.T) {
		tc := []struct {
			name   string
			copied int
			failed int
			links  int
			err    error
			want   RunStatus
		}{
			{name: "clean", copied: 2, want: RunCompleted},
			{name: "failed records", copied: 1, failed: 1, want: RunPartial},
			{name: "failed links", copied: 2, links: 1, want: RunPartial},
			{name: "error after copies", copied: 2, err: errors.New("boom"), want: RunPartial},
			{name: "error before copies", err: errors.New("boom"), want: RunFailed},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				run := NewMigrationRun(1, src, dst, "mapping")
				run.SetCopyCounts(tt.copied, tt.failed)
				run.SetLinkCounts(tt.links, 0, tt.links)
				run.Finish(tt.err)

				if run.Status() != tt.want {
					t.Errorf("status = %s, want %s", run.Status(), tt.want)
				}
				if run.CompletedAt() == nil {
					t.Error("expected completedAt to be set")
				}
				if tt.err != nil && run.ErrorMessage() != tt.err.Error() {
					t.Errorf("error message = %q, want %q", run.ErrorMessage(), tt.err.Error())
				}
			})
		}
	})
}
