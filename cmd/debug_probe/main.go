package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/gravito-framework/sysdash/pkg/probes"
	"github.com/gravito-framework/sysdash/pkg/sampler"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	probe := probes.NewGoSystemProbe()

	first, err := probe.ReadCPUTicks(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading CPU ticks: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("CPU ticks:")
	for _, mode := range first.Modes() {
		fmt.Printf("  %-8s %12.2f\n", mode, first[mode])
	}
	fmt.Printf("  %-8s %12.2f\n", "total", first.Total())

	time.Sleep(sampler.SamplePeriod)

	second, err := probe.ReadCPUTicks(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading CPU ticks: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("CPU load over %s: %.1f%%\n\n", sampler.SamplePeriod, sampler.CPULoad(first, second)*100)

	total, available, err := probe.ReadMemory(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading memory: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Memory: total=%s available=%s\n",
		datasize.ByteSize(total).HumanReadable(),
		datasize.ByteSize(available).HumanReadable())
	if ratio, err := sampler.MemoryRatio(total, available); err != nil {
		fmt.Printf("Memory usage: %v\n\n", err)
	} else {
		fmt.Printf("Memory usage: %.1f%%\n\n", ratio*100)
	}

	host := probes.ReadHostInfo(ctx)
	data, _ := json.MarshalIndent(host, "", "  ")
	fmt.Printf("Host info:\n%s\n", data)
	fmt.Printf("Process RSS: %s\n", datasize.ByteSize(host.ProcessRSS).HumanReadable())
}
