package cleaner

const (
	colVendorID             = "vendor_id"
	colPickup               = "tpep_pickup_datetime"
	colDropoff              = "tpep_dropoff_datetime"
	colPassengerCount       = "passenger_count"
	colTripDistance         = "trip_distance"
	colRateCodeID           = "ratecodeid"
	colStoreAndFwdFlag      = "store_and_fwd_flag"
	colPULocationID         = "pulocationid"
	colDOLocationID         = "dolocationid"
	colPaymentType          = "payment_type"
	colFareAmount           = "fare_amount"
	colExtra                = "extra"
	colMTATax               = "mta_tax"
	colTipAmount            = "tip_amount"
	colTollsAmount          = "tolls_amount"
	colImprovementSurcharge = "improvement_surcharge"
	colTotalAmount          = "total_amount"
	colCongestionSurcharge  = "congestion_surcharge"
	colAirportFee           = "airport_fee"
	colDuration             = "trip_duration_minutes"
)

// canonicalColumns is the staged field set, in output order.
var canonicalColumns = []string{
	colVendorID, colPickup, colDropoff, colPassengerCount, colTripDistance,
	colRateCodeID, colStoreAndFwdFlag, colPULocationID, colDOLocationID,
	colPaymentType, colFareAmount, colExtra, colMTATax, colTipAmount,
	colTollsAmount, colImprovementSurcharge, colTotalAmount,
	colCongestionSurcharge, colAirportFee,
}

var timestampColumns = []string{colPickup, colDropoff}

// numericColumns are imputed to domain.Missing when absent.
var numericColumns = []string{
	colVendorID, colPassengerCount, colTripDistance, colRateCodeID,
	colPULocationID, colDOLocationID, colPaymentType, colFareAmount,
	colExtra, colMTATax, colTipAmount, colTollsAmount,
	colImprovementSurcharge, colTotalAmount, colCongestionSurcharge,
	colAirportFee,
}

var textColumns = []string{colStoreAndFwdFlag}

// categoricalColumns end up as integers.
var categoricalColumns = []string{
	colVendorID, colPassengerCount, colRateCodeID,
	colPULocationID, colDOLocationID, colPaymentType,
}

// aliases maps normalized source names onto canonical ones. A canonical name
// present in the same record takes precedence.
var aliases = map[string]string{
	"vendorid":         colVendorID,
	"pickup_datetime":  colPickup,
	"dropoff_datetime": colDropoff,
	"rate_code_id":     colRateCodeID,
	"pu_location_id":   colPULocationID,
	"do_location_id":   colDOLocationID,
}

var canonicalSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(canonicalColumns))
	for _, c := range canonicalColumns {
		m[c] = struct{}{}
	}
	return m
}()
