package gpu

// queryFields is the ordered nvidia-smi --query-gpu field list. Row parsing
// depends on this order.
var queryFields = []string{
	"index",
	"utilization.gpu",
	"utilization.memory",
	"memory.used",
	"memory.free",
	"memory.total",
	"temperature.gpu",
	"power.draw",
	"clocks.sm",
	"clocks.mem",
	"name",
}

// minFields is the number of comma-separated fields a row needs to be kept.
var minFields = len(queryFields)

// DeviceSample is one nvidia-smi output row. Values are kept as reported,
// trimmed of surrounding whitespace; Name is not yet label-sanitized.
type DeviceSample struct {
	Index             string `json:"index"`
	UtilizationGPU    string `json:"utilization_gpu"`
	UtilizationMemory string `json:"utilization_memory"`
	MemoryUsed        string `json:"memory_used_mib"`
	MemoryFree        string `json:"memory_free_mib"`
	MemoryTotal       string `json:"memory_total_mib"`
	Temperature       string `json:"temperature_c"`
	PowerDraw         string `json:"power_draw_w"`
	SMClock           string `json:"sm_clock_mhz"`
	MemoryClock       string `json:"memory_clock_mhz"`
	Name              string `json:"name"`
}
