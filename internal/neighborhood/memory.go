package neighborhood

import (
	"sync"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/banshee-data/lidarfeatures/internal/monitoring"
)

// fallbackMemory is used when the host cannot report its memory size.
const fallbackMemory = 4 << 30

var physicalMemory = sync.OnceValue(func() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		monitoring.Logf("neighborhood: cannot read physical memory (%v), assuming %d bytes", err, uint64(fallbackMemory))
		return fallbackMemory
	}
	return vm.Total
})
