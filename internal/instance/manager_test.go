package instance

import (
	"net"
	"strconv"
	"testing"
	"time"

	"torfetch/internal/model"
)

// fakeProbe answers true for the given set of open ports.
func fakeProbe(open map[int]bool) func(string, int, time.Duration) bool {
	return func(_ string, port int, _ time.Duration) bool {
		return open[port]
	}
}

func discoverOpts(open map[int]bool) DiscoverOptions {
	return DiscoverOptions{
		Host:            "127.0.0.1",
		BaseSocksPort:   9050,
		BaseControlPort: 9051,
		PortIncrement:   2,
		MaxInstances:    10,
		ProbeTimeout:    time.Second,
		probe:           fakeProbe(open),
	}
}

// TestDiscover tests contiguous discovery with gap-stop semantics.
func TestDiscover(t *testing.T) {
	t.Parallel()

	t.Run("stops at first gap regardless of later ports", func(t *testing.T) {
		t.Parallel()

		// 9050 and 9052 open, 9054 closed, 9056 open again: the gap
		// at 9054 ends discovery at exactly two instances.
		m := Discover(discoverOpts(map[int]bool{9050: true, 9052: true, 9056: true}))
		if m.Count() != 2 {
			t.Fatalf("Count() = %d, expected 2", m.Count())
		}

		insts := m.Instances()
		if insts[0].SocksPort != 9050 || insts[0].ControlPort != 9051 || insts[0].ID != 1 {
			t.Errorf("first instance wrong: %+v", insts[0])
		}
		if insts[1].SocksPort != 9052 || insts[1].ControlPort != 9053 || insts[1].ID != 2 {
			t.Errorf("second instance wrong: %+v", insts[1])
		}
	})

	t.Run("no open ports synthesizes a default instance", func(t *testing.T) {
		t.Parallel()

		m := Discover(discoverOpts(map[int]bool{}))
		if m.Count() != 1 {
			t.Fatalf("Count() = %d, expected synthesized default", m.Count())
		}
		inst := m.Assign(0)
		if inst.SocksPort != 9050 || inst.ControlPort != 9051 {
			t.Errorf("default instance wrong: %+v", inst)
		}
		if m.MultiInstance() {
			t.Error("single default instance should not report multi-instance")
		}
	})

	t.Run("max instances caps discovery", func(t *testing.T) {
		t.Parallel()

		open := map[int]bool{}
		for p := 9050; p < 9100; p += 2 {
			open[p] = true
		}
		opts := discoverOpts(open)
		opts.MaxInstances = 3
		m := Discover(opts)
		if m.Count() != 3 {
			t.Errorf("Count() = %d, expected cap of 3", m.Count())
		}
	})

	t.Run("real listener is discovered", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { ln.Close() })

		_, portStr, err := net.SplitHostPort(ln.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			t.Fatal(err)
		}

		m := Discover(DiscoverOptions{
			Host:            "127.0.0.1",
			BaseSocksPort:   port,
			BaseControlPort: port + 1,
			PortIncrement:   2,
			MaxInstances:    1,
			ProbeTimeout:    time.Second,
		})
		if m.Count() != 1 {
			t.Fatalf("Count() = %d, expected 1", m.Count())
		}
		if m.Assign(0).SocksPort != port {
			t.Errorf("discovered port = %d, expected %d", m.Assign(0).SocksPort, port)
		}
	})
}

// TestAssign tests deterministic round-robin worker binding.
func TestAssign(t *testing.T) {
	t.Parallel()

	m := Discover(discoverOpts(map[int]bool{9050: true, 9052: true, 9054: true}))

	t.Run("round robin wraps", func(t *testing.T) {
		t.Parallel()

		want := []int{1, 2, 3, 1, 2, 3}
		for workerID, expectedInstance := range want {
			if got := m.Assign(workerID).ID; got != expectedInstance {
				t.Errorf("Assign(%d).ID = %d, expected %d", workerID, got, expectedInstance)
			}
		}
	})

	t.Run("assignment is stable", func(t *testing.T) {
		t.Parallel()

		for workerID := 0; workerID < 10; workerID++ {
			first := m.Assign(workerID)
			second := m.Assign(workerID)
			if first != second {
				t.Errorf("Assign(%d) not stable: %+v vs %+v", workerID, first, second)
			}
		}
	})
}

// TestNewManager tests the explicit-list constructor.
func TestNewManager(t *testing.T) {
	t.Parallel()

	insts := []model.Instance{{ID: 1, SocksPort: 9150, ControlPort: 9151, Host: "127.0.0.1"}}
	m := NewManager(insts, nil)
	if m.Count() != 1 {
		t.Fatalf("Count() = %d, expected 1", m.Count())
	}
	if m.Assign(5).SocksPort != 9150 {
		t.Errorf("Assign(5) = %+v, expected the only instance", m.Assign(5))
	}
}
