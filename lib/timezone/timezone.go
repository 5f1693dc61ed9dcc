package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic(err)
	}
}

// the college portal renders and compares dates in IST, so all date
// arithmetic is pinned there no matter where the server lands
func Now() time.Time {
	return time.Now().In(Location)
}
