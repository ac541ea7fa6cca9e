package partitions

// PartitionMap splits the index range [0, Total) into Parts contiguous
// buckets whose sizes differ by at most one
type PartitionMap struct {
	Total      int
	Parts      int
	Partitions [][2]int // Beginning and end index of each bucket
}

func NewPartitionMap(parts, total int) (pm *PartitionMap) {
	pm = &PartitionMap{
		Total:      total,
		Parts:      parts,
		Partitions: make([][2]int, parts),
	}
	for n := 0; n < parts; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

// Split1D is the range of bucket n, the remainder spread one each over the
// first buckets
func (pm *PartitionMap) Split1D(n int) (bucket [2]int) {
	var (
		size             = pm.Total / pm.Parts
		remainder        = pm.Total % pm.Parts
		startAdd, endAdd int
	)
	if remainder != 0 {
		if n+1 > remainder {
			startAdd = remainder
		} else {
			startAdd = n
			endAdd = 1
		}
	}
	bucket[0] = n*size + startAdd
	bucket[1] = bucket[0] + size + endAdd
	return
}

// Bucket returns the bucket holding index k, or -1 when k is out of range
func (pm *PartitionMap) Bucket(k int) int {
	_, bn := pm.bucketWithTryCount(k)
	return bn
}

func (pm *PartitionMap) bucketWithTryCount(k int) (tryCount, bn int) {
	if k < 0 || k >= pm.Total {
		return 0, -1
	}
	// Initial guess
	bn = int(float64(pm.Parts*k) / float64(pm.Total))
	for !(pm.Partitions[bn][0] <= k && pm.Partitions[bn][1] > k) {
		if pm.Partitions[bn][0] > k {
			bn--
		} else {
			bn++
		}
		if bn == -1 || bn == pm.Parts {
			return 0, -1
		}
		tryCount++
	}
	return
}

func (pm *PartitionMap) BucketSize(bn int) int {
	return pm.Partitions[bn][1] - pm.Partitions[bn][0]
}
