package engine

import "fmt"

func vehicleKey(id int64) string  { return fmt.Sprintf("vehicle:%d", id) }
func deliveryKey(id int64) string { return fmt.Sprintf("delivery:%d", id) }
