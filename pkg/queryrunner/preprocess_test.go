// SPDX-License-Identifier: AGPL-3.0-only

package queryrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/panelquery/pkg/querydata"
	"github.com/grafana/panelquery/pkg/util/test"
)

func TestPreprocessResult(t *testing.T) {
	t.Run("first result starts at revision 1 with a non-nil series", func(t *testing.T) {
		out := preprocessResult(querydata.PanelData{State: querydata.LoadingStateDone}, nil)
		assert.NotNil(t, out.Series)
		assert.Equal(t, int64(1), out.StructureRev)
	})

	t.Run("same shape keeps the previous revision", func(t *testing.T) {
		last := preprocessResult(doneData(stubFrame("A", 1)), nil)
		out := preprocessResult(doneData(stubFrame("A", 2)), &last)
		assert.Equal(t, last.StructureRev, out.StructureRev)
	})

	t.Run("shape change increments the revision", func(t *testing.T) {
		last := preprocessResult(doneData(stubFrame("A", 1)), nil)
		wide := stubFrame("A", 1)
		wide.Fields = append(wide.Fields, &querydata.Field{Name: "extra", Type: querydata.FieldTypeString, Values: []interface{}{"x"}})
		out := preprocessResult(doneData(wide), &last)
		assert.Equal(t, last.StructureRev+1, out.StructureRev)
	})
}

func TestMergeSideChannel(t *testing.T) {
	test.VerifyNoLeak(t)
	support := querydata.DataSupport{Annotations: true, AlertStates: true}

	newMerge := func(t *testing.T) (chan querydata.PanelData, chan SideChannelData, <-chan querydata.PanelData, context.CancelFunc) {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		primary := make(chan querydata.PanelData)
		side := make(chan SideChannelData)
		return primary, side, mergeSideChannel(ctx, primary, side, support), cancel
	}

	t.Run("primary emissions do not wait for the side channel", func(t *testing.T) {
		primary, _, out, _ := newMerge(t)

		go func() { primary <- doneData(stubFrame("A", 1)) }()
		merged := recvData(t, out)
		assert.Empty(t, merged.Annotations)
		assert.Nil(t, merged.AlertState)
	})

	t.Run("side emission recombines with the latest primary", func(t *testing.T) {
		primary, side, out, _ := newMerge(t)

		go func() { primary <- doneData(stubFrame("A", 1)) }()
		recvData(t, out)

		go func() { side <- SideChannelData{Annotations: []*querydata.Frame{stubFrame("anno", 9)}} }()
		merged := recvData(t, out)
		require.Len(t, merged.Annotations, 1)
		assert.Equal(t, querydata.TopicAnnotations, merged.Annotations[0].Topic())
		require.Len(t, merged.Series, 1)
		assert.Equal(t, []interface{}{1.0}, merged.Series[0].Fields[0].Values)
	})

	t.Run("side emission before any primary value is held, not forwarded", func(t *testing.T) {
		primary, side, out, _ := newMerge(t)

		go func() { side <- SideChannelData{Annotations: []*querydata.Frame{stubFrame("anno", 9)}} }()
		select {
		case v := <-out:
			t.Fatalf("unexpected emission %v before the primary produced", v.State)
		case <-time.After(50 * time.Millisecond):
		}

		go func() { primary <- doneData(stubFrame("A", 1)) }()
		merged := recvData(t, out)
		require.Len(t, merged.Annotations, 1, "first primary emission carries the held side data")
	})

	t.Run("closed primary still forwards side updates", func(t *testing.T) {
		primary, side, out, _ := newMerge(t)

		go func() {
			primary <- doneData(stubFrame("A", 1))
			close(primary)
		}()
		recvData(t, out)

		go func() { side <- SideChannelData{AlertState: &querydata.AlertState{State: "pending"}} }()
		merged := recvData(t, out)
		require.NotNil(t, merged.AlertState)
		assert.Equal(t, "pending", merged.AlertState.State)
	})

	t.Run("both closed completes the merge", func(t *testing.T) {
		primary, side, out, _ := newMerge(t)
		close(primary)
		close(side)
		_, ok := <-out
		assert.False(t, ok)
	})
}

func TestCombineSideChannelKeepsPanelAnnotationsFirst(t *testing.T) {
	own := stubFrame("own", 1)
	own.Meta = &querydata.FrameMeta{Topic: querydata.TopicAnnotations}
	data := querydata.PanelData{State: querydata.LoadingStateDone, Annotations: []*querydata.Frame{own}}

	merged := combineSideChannel(data, &SideChannelData{Annotations: []*querydata.Frame{stubFrame("dash", 2)}},
		querydata.DataSupport{Annotations: true})

	require.Len(t, merged.Annotations, 2)
	assert.Equal(t, "own", merged.Annotations[0].Name)
	assert.Equal(t, "dash", merged.Annotations[1].Name)
	// The input slice is untouched.
	assert.Len(t, data.Annotations, 1)
}

func TestCombineSideChannelRespectsDataSupport(t *testing.T) {
	data := doneData(stubFrame("A", 1))
	side := &SideChannelData{
		Annotations: []*querydata.Frame{stubFrame("anno", 1)},
		AlertState:  &querydata.AlertState{State: "alerting"},
	}

	t.Run("annotations only", func(t *testing.T) {
		merged := combineSideChannel(data, side, querydata.DataSupport{Annotations: true})
		assert.Len(t, merged.Annotations, 1)
		assert.Nil(t, merged.AlertState)
	})

	t.Run("alert states only", func(t *testing.T) {
		merged := combineSideChannel(data, side, querydata.DataSupport{AlertStates: true})
		assert.Empty(t, merged.Annotations)
		assert.NotNil(t, merged.AlertState)
	})
}
