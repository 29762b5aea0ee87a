package media

import (
	"cmp"
	"fmt"
)

// SelectBestStream returns the index of the best stream of type mt.
//
// Candidates are ranked by compareStreams; ties keep the stream that comes
// first. It fails with ErrStreamNotFound
// when no stream has the requested type; callers decide whether that is
// fatal.
func SelectBestStream(descs []StreamDescriptor, mt MediaType) (int, error) {
	return selectBest(descs, mt, nil)
}

// SelectSourceStream is SelectBestStream using the source's own ranking
// when it implements BestStreamChooser.
func SelectSourceStream(src ContainerSource, mt MediaType) (int, error) {
	chooser, _ := src.(BestStreamChooser)
	return selectBest(src.Streams(), mt, chooser)
}

func selectBest(descs []StreamDescriptor, mt MediaType, chooser BestStreamChooser) (int, error) {
	var candidates []StreamDescriptor
	for _, d := range descs {
		if d.MediaType == mt {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return -1, fmt.Errorf("%w: no %s stream", ErrStreamNotFound, mt)
	}
	if chooser != nil {
		return chooser.BestStream(candidates), nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if compareStreams(c, best) > 0 {
			best = c
		}
	}
	return best.Index, nil
}

// compareStreams orders two streams of the same media type: a stream with
// an available decoder wins, then the larger picture or the more samples
// per second, then the higher bitrate. It returns a positive value when a
// is preferred.
func compareStreams(a, b StreamDescriptor) int {
	if da, db := HasDecoder(a), HasDecoder(b); da != db {
		if da {
			return 1
		}
		return -1
	}
	if c := cmp.Compare(streamSize(a), streamSize(b)); c != 0 {
		return c
	}
	return cmp.Compare(a.BitRate, b.BitRate)
}

func streamSize(d StreamDescriptor) int {
	if d.MediaType == MediaTypeVideo {
		return d.Width * d.Height
	}
	return d.Channels * d.SampleRate
}
