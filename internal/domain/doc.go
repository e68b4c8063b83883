// Package domain models numerical weather-prediction (NWP) grids published by the
// Slovenian Environment Agency (ARSO) from its ALADIN limited-area model.
//
// # Data Source
//
// ARSO publishes one zip archive per forecast run at
// https://meteo.arso.gov.si/uploads/probase/www/model/data/nwp_YYYYMMDD-HHMM.zip.
// Each archive holds several GRIB members, one per block of forecast lead times.
// Runs are initialised every 6 hours (00, 06, 12, 18 UTC) and usually appear a
// couple of hours after the initialisation time. Until then the endpoint answers
// with a non-success status, which is reported as [ErrRunUnavailable].
//
// # Field Groups
//
// Every member decodes into five datasets in a fixed order. The order is a
// contract with the decoder and is checked by [NormalizeGroup] callers:
//
//	0  near-surface (2 m)          r, t2m              -> table data0
//	1  10 m wind                   u10, v10            -> table data1
//	2  pressure levels (hPa)       z, t, u, v, r       -> table data2
//	3  mean sea level              msl                 -> table data3
//	4  surface flux/cloud/precip   sp, tcc, tp         -> table data4
//
// Short names are decoder-internal codes. Output columns use the decoder's
// canonical (CF) name for each variable, e.g. t2m -> air_temperature. Total cloud
// cover and total precipitation carry no CF name, so they keep the conventional
// names tcc and tp.
//
// # Timestamps
//
// Two timestamps travel with every row:
//
//	time        run reference (initialisation) time, 6-hour aligned
//	valid_time  time the value pertains to: run time + forecast step
//
// The forecast step itself is dropped after normalization. Missing runs are
// derived from the maximum persisted run time; duplicate suppression uses the
// maximum persisted validity time.
//
// # Location Matching
//
// Grid cells are joined to monitored stations on latitude and longitude each
// rounded to one decimal place (about 11 km at Slovenian latitudes). Station
// coordinates come from the observation feed
// observationAms_<STATION>_latest.xml (metData/domain_lat, metData/domain_lon).
// See [LocationIndex].
package domain
