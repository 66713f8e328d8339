package gpu

import (
	"strconv"
	"strings"
)

const (
	metricDevGPUUtil     = "DCGM_FI_DEV_GPU_UTIL"
	metricDevMemCopyUtil = "DCGM_FI_DEV_MEM_COPY_UTIL"
	metricDevFBUsed      = "DCGM_FI_DEV_FB_USED"
	metricDevFBFree      = "DCGM_FI_DEV_FB_FREE"
	metricDevFBTotal     = "DCGM_FI_DEV_FB_TOTAL"
	metricDevGPUTemp     = "DCGM_FI_DEV_GPU_TEMP"
	metricDevPowerUsage  = "DCGM_FI_DEV_POWER_USAGE"
	metricDevSMClock     = "DCGM_FI_DEV_SM_CLOCK"
	metricDevMemClock    = "DCGM_FI_DEV_MEM_CLOCK"
)

// gauge describes one rendered metric kind.
type gauge struct {
	name  string
	help  string
	value func(DeviceSample) string
}

// gauges is the per-device emission order.
var gauges = []gauge{
	{metricDevGPUUtil, "GPU utilization percentage", func(s DeviceSample) string { return s.UtilizationGPU }},
	{metricDevMemCopyUtil, "Memory utilization percentage", func(s DeviceSample) string { return s.UtilizationMemory }},
	{metricDevFBUsed, "Framebuffer memory used in MB", func(s DeviceSample) string { return s.MemoryUsed }},
	{metricDevFBFree, "Framebuffer memory free in MB", func(s DeviceSample) string { return s.MemoryFree }},
	{metricDevFBTotal, "Framebuffer memory total in MB", func(s DeviceSample) string { return s.MemoryTotal }},
	{metricDevGPUTemp, "GPU temperature in Celsius", func(s DeviceSample) string { return s.Temperature }},
	{metricDevPowerUsage, "Power usage in Watts", func(s DeviceSample) string { return formatPower(s.PowerDraw) }},
	{metricDevSMClock, "SM clock frequency in MHz", func(s DeviceSample) string { return s.SMClock }},
	{metricDevMemClock, "Memory clock frequency in MHz", func(s DeviceSample) string { return s.MemoryClock }},
}

var (
	// powerSentinels are nvidia-smi placeholders for an unavailable reading.
	powerSentinels = strings.NewReplacer("[Not Supported]", "0", "[N/A]", "0")

	labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
)

// RenderSamples renders every sample as HELP, TYPE and sample lines for each
// gauge, devices in input order.
func RenderSamples(samples []DeviceSample) []string {
	lines := make([]string, 0, len(samples)*len(gauges)*3)
	for _, s := range samples {
		labels := deviceLabels(s)
		for _, g := range gauges {
			lines = append(lines,
				"# HELP "+g.name+" "+g.help,
				"# TYPE "+g.name+" gauge",
				g.name+"{"+labels+"} "+g.value(s),
			)
		}
	}
	return lines
}

// renderError renders a query failure as a single comment line.
func renderError(msg string) string {
	return "# Error: " + strings.Join(strings.Fields(msg), " ")
}

func deviceLabels(s DeviceSample) string {
	return `gpu="` + escapeLabelValue(s.Index) + `",gpu_name="` + escapeLabelValue(sanitizeName(s.Name)) + `"`
}

// sanitizeName makes a device name label-friendly.
func sanitizeName(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}

func escapeLabelValue(v string) string {
	return labelEscaper.Replace(v)
}

// formatPower normalizes a power.draw reading, mapping placeholders and
// anything unparseable to 0.
func formatPower(raw string) string {
	v, err := strconv.ParseFloat(powerSentinels.Replace(raw), 64)
	if err != nil {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
