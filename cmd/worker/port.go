package main

import "strconv"

func metricsPort(apiPort string) string {
	p, err := strconv.Atoi(apiPort)
	if err != nil || p <= 0 || p >= 65535 {
		return "9091"
	}
	return strconv.Itoa(p + 1)
}
