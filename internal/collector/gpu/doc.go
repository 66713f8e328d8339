// Package gpu implements a collector for NVIDIA GPU metrics from nvidia-smi.
//
// On every collection it runs nvidia-smi with a fixed query field list in
// headerless, unit-free CSV form, parses one DeviceSample per output row and
// renders each sample as a block of DCGM-named gauges in the Prometheus text
// exposition format. The metric names match those published by dcgm-exporter
// so dashboards built for it keep working.
//
// Collection never fails to its caller: a missing binary, a timeout or any
// other invocation failure is rendered as a single "# Error:" comment line.
// Rows with too few fields are dropped and unparseable power readings are
// reported as 0.
package gpu
