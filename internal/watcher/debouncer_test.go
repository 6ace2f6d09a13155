package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPath = "shop/1.0/messages.properties"

func receiveBatch(t *testing.T, d *Debouncer, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(timeout):
		t.Fatal("timeout waiting for debounced events")
		return nil
	}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: a single event is added
	d.Add(FileEvent{Path: testPath, Operation: OpCreate, Timestamp: time.Now()})

	// Then: the event passes through after the debounce window
	events := receiveBatch(t, d, 500*time.Millisecond)
	require.Len(t, events, 1)
	assert.Equal(t, testPath, events[0].Path)
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestDebouncer_Merge(t *testing.T) {
	tests := []struct {
		name   string
		ops    []Operation
		want   Operation
		wantOK bool
	}{
		{"modify modify", []Operation{OpModify, OpModify, OpModify}, OpModify, true},
		{"create modify", []Operation{OpCreate, OpModify}, OpCreate, true},
		{"create delete", []Operation{OpCreate, OpDelete}, 0, false},
		{"create rename", []Operation{OpCreate, OpRename}, 0, false},
		{"modify delete", []Operation{OpModify, OpDelete}, OpDelete, true},
		{"delete create", []Operation{OpDelete, OpCreate}, OpModify, true},
		{"create modify delete", []Operation{OpCreate, OpModify, OpDelete}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a debouncer
			d := NewDebouncer(30 * time.Millisecond)
			defer d.Stop()

			// When: the sequence is added within one window, followed by a marker
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: testPath, Operation: op, Timestamp: time.Now()})
			}
			d.Add(FileEvent{Path: "zz/marker.properties", Operation: OpModify})

			// Then: the sequence collapses as expected
			events := receiveBatch(t, d, 500*time.Millisecond)
			if !tt.wantOK {
				require.Len(t, events, 1)
				assert.Equal(t, "zz/marker.properties", events[0].Path)
				return
			}
			require.Len(t, events, 2)
			assert.Equal(t, testPath, events[0].Path)
			assert.Equal(t, tt.want, events[0].Operation)
		})
	}
}

func TestDebouncer_DifferentFiles_SortedBatch(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: events for different files arrive out of order
	d.Add(FileEvent{Path: "b/2/x_de.properties", Operation: OpModify})
	d.Add(FileEvent{Path: "a/1/x.properties", Operation: OpCreate})
	d.Add(FileEvent{Path: "a/1/x_fr.properties", Operation: OpDelete})

	// Then: one batch ordered by path
	events := receiveBatch(t, d, 500*time.Millisecond)
	require.Len(t, events, 3)
	assert.Equal(t, "a/1/x.properties", events[0].Path)
	assert.Equal(t, "a/1/x_fr.properties", events[1].Path)
	assert.Equal(t, "b/2/x_de.properties", events[2].Path)
}

func TestDebouncer_WindowRestartsOnActivity(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(80 * time.Millisecond)
	defer d.Stop()

	// When: modifications keep arriving faster than the window
	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: testPath, Operation: OpModify})
		time.Sleep(20 * time.Millisecond)
	}

	// Then: exactly one event is emitted
	events := receiveBatch(t, d, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, OpModify, events[0].Operation)
}

func TestDebouncer_Stop_ClosesOutput(t *testing.T) {
	// Given: a debouncer with a pending event
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: testPath, Operation: OpCreate})

	// When: stopping twice
	d.Stop()
	d.Stop()

	// Then: output is closed and later adds are ignored
	_, ok := <-d.Output()
	assert.False(t, ok)
	d.Add(FileEvent{Path: testPath, Operation: OpCreate})
}
