//go:build !unix

package quota

func availableBytes(string) (int64, error) {
	return 0, errUnsupported
}
