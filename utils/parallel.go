package utils

import "runtime"

// ParallelFactor bounds how many independent solves run at once.
var ParallelFactor = max(1, runtime.GOMAXPROCS(0))
