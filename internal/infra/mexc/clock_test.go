package mexc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestClock_UpdateSetsOffset(t *testing.T) {
	clock := NewClock()

	serverAhead := time.Now().UnixMilli() + 3000
	clock.update(serverAhead)

	offset := clock.OffsetMS()
	if offset < 2900 || offset > 3100 {
		t.Errorf("offset = %dms, want about 3000ms", offset)
	}

	aligned := clock.NowMS() - time.Now().UnixMilli()
	if aligned < 2900 || aligned > 3100 {
		t.Errorf("NowMS not offset-adjusted: drift %dms", aligned)
	}
}

func TestClock_StartSyncPrimesOffsetImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serverMS := time.Now().UnixMilli() + 5000
		w.Write([]byte(`{"serverTime":` + strconv.FormatInt(serverMS, 10) + `}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 2)
	clock := client.Clock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock.StartSync(ctx, client, time.Hour)
	defer clock.StopSync()

	offset := clock.OffsetMS()
	if offset < 4800 || offset > 5200 {
		t.Errorf("offset after first sync = %dms, want about 5000ms", offset)
	}
}
