package bench

import (
	"testing"

	g "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBench(t *testing.T) {
	RegisterFailHandler(g.Fail)
	g.RunSpecs(t, "Bench Suite")
}
