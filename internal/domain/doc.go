// Package domain models air quality readings and the AQI severity scale.
//
// # Feature Variants
//
// A trained model consumes a fixed-order numeric vector. The order is a
// contract with the training process and cannot be discovered at runtime,
// so each supported layout is declared here as a [Variant]:
//
//	pollutants          pm2_5, pm10, no, no2, co, so2, o3
//	pollutants-weather  pm2_5, pm10, so2, no2, co, o3, temperature, humidity
//
// Concentrations are taken as reported (µg/m³, CO in mg/m³). No range
// checks are applied: a negative reading is passed to the model unchanged.
// Temperature is °C and humidity is relative humidity in percent.
//
// # Severity Categories
//
// Scores map to the six US EPA AQI bands using inclusive upper bounds:
//
//	  0 –  50  Good
//	 51 – 100  Moderate
//	101 – 150  Unhealthy for Sensitive Groups
//	151 – 200  Unhealthy
//	201 – 300  Very Unhealthy
//	301+       Hazardous
//
// A score exactly on a boundary belongs to the lower band. See [Categorize].
//
// # Errors
//
// Every failure the request path can produce carries one of three kinds
// ([KindModelUnavailable], [KindValidation], [KindPrediction]) so that
// transports can map them to responses without string matching.
package domain
