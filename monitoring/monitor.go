// Package monitoring turns a running simulation into a small web server so
// that it can be observed and controlled from outside the process.
package monitoring

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/modwizcode/amaranth/sim"
)

// Monitor exposes a Simulator over HTTP. It can pause and continue the
// run, inspect process states, and peek at signal values.
type Monitor struct {
	simulator   *sim.Simulator
	portNumber  int
	openBrowser bool

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowserOpen makes StartServer open the monitor URL in the default
// browser.
func (m *Monitor) WithBrowserOpen() *Monitor {
	m.openBrowser = true
	return m
}

// RegisterSimulator registers the simulator to be monitored.
func (m *Monitor) RegisterSimulator(s *sim.Simulator) {
	m.simulator = s
}

// StartServer starts the monitor as a web server with a custom port if
// wanted.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseSimulator)
	r.HandleFunc("/api/continue", m.continueSimulator)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/run_until/{time}", m.runUntil)
	r.HandleFunc("/api/processes", m.listProcesses)
	r.HandleFunc("/api/process/{name}", m.listProcessDetails)
	r.HandleFunc("/api/signals", m.listSignals)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %s\n", err)
		}
	}

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()
}

func (m *Monitor) pauseSimulator(w http.ResponseWriter, _ *http.Request) {
	m.simulator.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueSimulator(w http.ResponseWriter, _ *http.Request) {
	m.simulator.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	now := m.simulator.CurrentTime()
	fmt.Fprintf(w, "{\"now\":%.10f}", now)
}

func (m *Monitor) run(_ http.ResponseWriter, _ *http.Request) {
	go func() {
		err := m.simulator.Run()
		if err != nil {
			panic(err)
		}
	}()
}

func (m *Monitor) runUntil(w http.ResponseWriter, r *http.Request) {
	timeStr := mux.Vars(r)["time"]

	deadline, err := strconv.ParseFloat(timeStr, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	go func() {
		err := m.simulator.RunUntil(sim.VTimeInSec(deadline), false)
		if err != nil {
			panic(err)
		}
	}()
}

func (m *Monitor) listProcesses(w http.ResponseWriter, _ *http.Request) {
	statuses := m.simulator.ProcessStatuses()

	bytes, err := json.Marshal(statuses)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) listProcessDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	proc, ok := m.simulator.ProcessState(name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Process not found"))
		dieOnErr(err)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(proc)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type signalRsp struct {
	Name  string `json:"name"`
	Width int    `json:"width"`
	Value int64  `json:"value"`
}

func (m *Monitor) listSignals(w http.ResponseWriter, _ *http.Request) {
	var rsp []signalRsp
	for signal, names := range m.simulator.SignalNames() {
		for _, name := range names {
			rsp = append(rsp, signalRsp{
				Name:  strings.Join(name, "."),
				Width: signal.Shape().Width,
				Value: m.simulator.Peek(signal),
			})
		}
	}
	sort.Slice(rsp, func(i, j int) bool {
		return rsp[i].Name < rsp[j].Name
	})

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bytes, err := json.Marshal(m.progressBars)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
