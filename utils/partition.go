package utils

// PartitionMap splits a contiguous index range [0, MaxIndex) into
// ParallelDegree buckets with a maximum imbalance of one item. It is used to
// assign global point/element indices to ranks and worker threads.
type PartitionMap struct {
	MaxIndex       int
	ParallelDegree int
	Partitions     [][2]int // begin/end index per bucket
}

func NewPartitionMap(parallelDegree, maxIndex int) (pm *PartitionMap) {
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: parallelDegree,
		Partitions:     make([][2]int, parallelDegree),
	}
	for n := 0; n < parallelDegree; n++ {
		pm.Partitions[n] = pm.split1D(n)
	}
	return
}

func (pm *PartitionMap) split1D(bucketNum int) (bucket [2]int) {
	var (
		base             = pm.MaxIndex / pm.ParallelDegree
		remainder        = pm.MaxIndex % pm.ParallelDegree
		startAdd, endAdd int
	)
	if remainder != 0 { // spread the remainder over the first buckets
		if bucketNum+1 > remainder {
			startAdd = remainder
		} else {
			startAdd = bucketNum
			endAdd = 1
		}
	}
	bucket[0] = bucketNum*base + startAdd
	bucket[1] = bucket[0] + base + endAdd
	return
}

// GetBucket locates the bucket containing the global index using an initial
// proportional guess followed by a short directional probe.
func (pm *PartitionMap) GetBucket(index int) (bucketNum, min, max int) {
	bucketNum = int(float64(pm.ParallelDegree*index) / float64(pm.MaxIndex))
	for !(pm.Partitions[bucketNum][0] <= index && index < pm.Partitions[bucketNum][1]) {
		if pm.Partitions[bucketNum][0] > index {
			bucketNum--
		} else {
			bucketNum++
		}
		if bucketNum < 0 || bucketNum == pm.ParallelDegree {
			return -1, 0, 0
		}
	}
	min, max = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (min, max int) {
	min, max = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketDimension(bucketNum int) (size int) {
	if bucketNum == -1 {
		return pm.MaxIndex
	}
	min, max := pm.GetBucketRange(bucketNum)
	return max - min
}

// GetLocalIndex converts a global index into (local index, bucket).
func (pm *PartitionMap) GetLocalIndex(globalIndex int) (local, bucketNum int) {
	bn, min, _ := pm.GetBucket(globalIndex)
	return globalIndex - min, bn
}

// GetGlobalIndex converts a bucket-local index back to the global index.
func (pm *PartitionMap) GetGlobalIndex(local, bucketNum int) (globalIndex int) {
	if bucketNum == -1 {
		return local
	}
	return pm.Partitions[bucketNum][0] + local
}
