package attribute

import "fmt"

// lidarNode is one row of the built-in catalogue: attribute name, string
// node identifier, value kind and group.
type lidarNode struct {
	name       string
	identifier string
	kind       Kind
	group      Group
}

// lidarNodes lists every telemetry node published by the SI3 LIDAR server
// (ICD v0.2). Order is significant: the first entry is the liveness probe
// target and the remaining order drives batched reads and API listings.
var lidarNodes = []lidarNode{
	// Status and server info
	{"STATE", "lidar_get_state", KindInteger, GroupStatus},
	{"STATUS", "lidar_get_status", KindInteger, GroupStatus},
	{"APP_NAME", "lidar_get_serverApplicationName", KindString, GroupStatus},
	{"OPCUA_PORT", "lidar_get_opcuaPort", KindInteger, GroupStatus},
	{"WEB_PORT", "lidar_get_webPort", KindInteger, GroupStatus},
	{"APP_START_TIME", "lidar_get_startTime", KindString, GroupStatus},
	{"SERIAL_NUMBER", "lidar_get_serialNumber", KindString, GroupStatus},
	{"TABLE_FILE_NAME", "lidar_get_fileNameTable", KindString, GroupStatus},
	{"PROSYS_SDK_VERSION", "lidar_get_sdkversion", KindString, GroupStatus},
	{"CURRENT_SESSION_NUMBER", "lidar_get_currentsessionnumber", KindInteger, GroupStatus},
	{"SESSIONS_NAME", "lidar_get_sessionsname", KindString, GroupStatus},
	{"RANDOM_GENERATOR_CODE", "lidar_get_randomgeneratorcode", KindInteger, GroupStatus},
	{"VERBOSE_STATUS", "lidar_get_verbosestatus", KindBoolean, GroupStatus},
	{"UPDATETIME", "lidar_get_updatetime", KindInteger, GroupStatus},
	{"ISOTSTAMP", "lidar_get_isotstamp", KindString, GroupStatus},
	{"HEARTBEAT", "heartbeat", KindInteger, GroupStatus},

	// Errors
	{"ERROR_NUMBER", "lidar_get_error_number", KindInteger, GroupErrors},
	{"ERROR_INFORMATION", "lidar_get_error_information", KindString, GroupErrors},
	{"ERROR_RECOVERING", "lidar_get_error_recovering", KindString, GroupErrors},
	{"ERROR_NUMBER_RECOVERED", "lidar_get_error_number_recovered", KindInteger, GroupErrors},
	{"ERROR_NUMBER_OUTOFRANGE", "lidar_get_error_number_outofrange", KindBoolean, GroupErrors},

	// Raw channels
	{"ELASTIC_CHANNEL_355_NM", "lidar_get_ElasticChannel355Nm", KindFloat, GroupRawChannels},
	{"ELASTIC_CHANNEL_532_NM", "lidar_get_ElasticChannel532Nm", KindFloat, GroupRawChannels},
	{"ELASTIC_CHANNEL_1064_NM", "lidar_get_ElasticChannel1064Nm", KindFloat, GroupRawChannels},
	{"RAMAN_CHANNEL_N2_387_NM", "lidar_get_RamanChannelN2387Nm", KindFloat, GroupRawChannels},
	{"RAMAN_CHANNEL_H2O", "lidar_get_RamanChannelH2o", KindFloat, GroupRawChannels},
	{"RAMAN_RANGE_SIGNAL_COUNTS", "lidar_get_RamanRangeSignalCounts", KindFloat, GroupRawChannels},
	{"STATISTICAL_ERROR_PER_BIN", "lidar_get_StatisticalErrorPerBin", KindFloat, GroupRawChannels},
	{"INTEGRATION_TIME", "lidar_get_IntegrationTime", KindFloat, GroupRawChannels},
	{"CO_POLAR_355_NM", "lidar_get_CoPolar355Nm", KindFloat, GroupRawChannels},
	{"CROSS_POLAR_355_NM", "lidar_get_CrossPolar355Nm", KindFloat, GroupRawChannels},
	{"CO_POLAR_532_NM", "lidar_get_CoPolar532Nm", KindFloat, GroupRawChannels},
	{"CROSS_POLAR_532_NM", "lidar_get_CrossPolar532Nm", KindFloat, GroupRawChannels},
	{"DEPOLARISATION_RATIO_PROFILE", "lidar_get_DepolarisationRatioProfile", KindFloat, GroupRawChannels},

	// Derived parameters
	{"BACKSCATTER_COEFFICIENT_BETA_Z", "lidar_get_BackscatterCoefficientBetaZ", KindFloat, GroupDerived},
	{"EXTINCTION_COEFFICIENT_ALPHA_Z", "lidar_get_ExtinctionCoefficientAlphaZ", KindFloat, GroupDerived},
	{"AEROSOL_OPTICAL_DEPTH", "lidar_get_AerosolOpticalDepth", KindFloat, GroupDerived},
	{"LIDAR_RATIO_S_Z", "lidar_get_LidarRatioSZ", KindFloat, GroupDerived},
	{"HUMIDITY_PROFILE_H2O", "lidar_get_HumidityProfileH2o", KindFloat, GroupDerived},
	{"PBL_HEIGHT", "lidar_get_PblHeight", KindFloat, GroupDerived},
	{"CLOUD_BASE_HEIGHT", "lidar_get_CloudBaseHeight", KindFloat, GroupDerived},
	{"SNR_PER_BIN", "lidar_get_SnrPerBin", KindFloat, GroupDerived},

	// Metadata and quality indicators
	{"TIMESTAMP_UTC", "lidar_get_Timestamp_Utc", KindString, GroupMetadata},
	{"INTEGRATION_ACCUMULATION_TIME", "lidar_get_IntegrationAccumulationTime", KindFloat, GroupMetadata},
	{"NUMBER_OF_ACCUMULATED_PULSES", "lidar_get_NumberOfAccumulatedPulses", KindFloat, GroupMetadata},
	{"VERTICAL_RESOLUTION_BIN_SIZE", "lidar_get_VerticalResolutionBinSize", KindFloat, GroupMetadata},
	{"TEMPORAL_RESOLUTION", "lidar_get_TemporalResolution", KindFloat, GroupMetadata},
	{"GLOBAL_SNR", "lidar_get_GlobalSnr", KindFloat, GroupMetadata},
	{"QUALITY_FLAGS", "lidar_get_QualityFlags", KindString, GroupMetadata},
	{"INTERNAL_TEMPERATURES", "lidar_get_InternalTemperatures", KindFloat, GroupMetadata},
	{"LASER_READINGS_ENERGY_VOLTAGE_PRF", "lidar_get_LaserReadingsEnergyVoltagePrf", KindFloat, GroupMetadata},

	// Pre-processed products
	{"AOD_TIME_SERIES", "lidar_get_AodTimeSeries", KindFloat, GroupProducts},
	{"AVERAGED_INTERVAL_PROFILES", "lidar_get_AveragedIntervalProfiles", KindFloat, GroupProducts},
	{"NETCDF_ASCII_GRID_FILES", "lidar_get_NetcdfAsciiGridFiles", KindString, GroupProducts},
	{"RANGE_TIME_IMAGES", "lidar_get_RangeTimeImages", KindString, GroupProducts},
	{"ASH_CLOUD_AUTOMATIC_DETECTION", "lidar_get_AshCloudAutomaticDetection", KindString, GroupProducts},

	// Pointing and scanning capabilities
	{"MOTORISED_2_AXIS_MOUNT", "lidar_get_Motorised2AxisMount", KindString, GroupPointing},
	{"THREE_D_SCANNING_CAPABILITY", "lidar_get_ThreeDScanningCapability", KindString, GroupPointing},
	{"AZIMUTH_RANGE_0_360_DEG", "lidar_get_AzimuthRange0360Deg", KindFloat, GroupPointing},
	{"ELEVATION_RANGE_NEG5_90_DEG", "lidar_get_ElevationRange_590Deg", KindFloat, GroupPointing},
	{"POINTING_ACCURACY", "lidar_get_PointingAccuracy", KindFloat, GroupPointing},
	{"ANGULAR_SPEED_CONFIGURABLE", "lidar_get_AngularSpeedConfigurable", KindFloat, GroupPointing},
	{"MODE_STARE_FIXED", "lidar_get_ModeStareFixed", KindString, GroupPointing},
	{"MODE_RASTER_SCAN", "lidar_get_ModeRasterScan", KindString, GroupPointing},
	{"MODE_CONE_SCAN", "lidar_get_ModeConeScan", KindString, GroupPointing},
	{"MODE_VOLUME_SCAN", "lidar_get_ModeVolumeScan", KindString, GroupPointing},
	{"ANGULAR_STEP_PER_BIN", "lidar_get_AngularStepPerBin", KindFloat, GroupPointing},
	{"INTEGRATION_TIME_PER_POSITION", "lidar_get_IntegrationTimePerPosition", KindFloat, GroupPointing},

	// Remote control feedback
	{"ETHERNET_API_GUI_CONTROL", "lidar_get_EthernetApiGuiControl", KindString, GroupRemoteControl},
	{"CMD_SET_AZ", "lidar_get_CmdSetAz", KindString, GroupRemoteControl},
	{"CMD_SET_EL", "lidar_get_CmdSetEl", KindString, GroupRemoteControl},
	{"CMD_HOME", "lidar_get_CmdHome", KindString, GroupRemoteControl},
	{"CMD_PARK", "lidar_get_CmdPark", KindString, GroupRemoteControl},
	{"CMD_START_SCAN", "lidar_get_CmdStartScan", KindString, GroupRemoteControl},
	{"TELEMETRY_STATUS_POSITION_ENCODER", "lidar_get_TelemetryStatusPositionEncoder", KindString, GroupRemoteControl},
	{"COMMAND_LATENCY", "lidar_get_CommandLatency", KindFloat, GroupRemoteControl},
	{"ENCODER_POSITION_CONFIRMATION", "lidar_get_EncoderPositionConfirmation", KindString, GroupRemoteControl},
	{"DIRECT_POINTING_COMMANDS", "lidar_get_DirectPointingCommands", KindString, GroupRemoteControl},
	{"POINTING_TOLERANCE", "lidar_get_PointingTolerance", KindFloat, GroupRemoteControl},
	{"POINTING_VERIFICATION", "lidar_get_PointingVerification", KindString, GroupRemoteControl},
	{"MEASUREMENT_STRATEGY_BY_POINTING", "lidar_get_MeasurementStrategyByPointing", KindString, GroupRemoteControl},
	{"POSITION_QUALITY_FLAGS", "lidar_get_PositionQualityFlags", KindString, GroupRemoteControl},

	// Safety
	{"SAFETY_INTERLOCKS", "lidar_get_SafetyInterlocks", KindString, GroupSafety},
	{"NO_GO_ZONES", "lidar_get_NoGoZones", KindString, GroupSafety},
	{"HUMAN_PRESENCE_LOCKOUT", "lidar_get_HumanPresenceLockout", KindString, GroupSafety},
	{"DAY_NIGHT_MODES", "lidar_get_DayNightModes", KindString, GroupSafety},

	// Measurement state
	{"MEASUREMENT_TIME_UTC", "lidar_get_MeasurementTimeUtc", KindString, GroupMeasurement},
	{"INTEGRATION_SECONDS", "lidar_get_IntegrationSeconds", KindFloat, GroupMeasurement},
	{"LASER_WAVELENGTH_NM", "lidar_get_LaserWavelengthNm", KindFloat, GroupMeasurement},
	{"CHANNEL_ID", "lidar_get_ChannelId", KindString, GroupMeasurement},
	{"RANGE_M", "lidar_get_RangeM", KindFloat, GroupMeasurement},
	{"SIGNAL_COUNTS", "lidar_get_SignalCounts", KindFloat, GroupMeasurement},
	{"SIGNAL_ERROR", "lidar_get_SignalError", KindFloat, GroupMeasurement},
	{"BACKSCATTER_COEF_M_SR", "lidar_get_BackscatterCoefMSr", KindFloat, GroupMeasurement},
	{"EXTINCTION_COEF_KM_1", "lidar_get_ExtinctionCoefKm1", KindFloat, GroupMeasurement},
	{"DEPOLARIZATION_RATIO", "lidar_get_DepolarizationRatio", KindFloat, GroupMeasurement},
	{"WATER_VAPOUR_MIXING_RATIO_G_PER_KG", "lidar_get_WaterVapourMixingRatioGPerKg", KindFloat, GroupMeasurement},
	{"CLOUD_BASE_HEIGHT_M", "lidar_get_CloudBaseHeightM", KindFloat, GroupMeasurement},
	{"PBL_HEIGHT_M", "lidar_get_PblHeightM", KindFloat, GroupMeasurement},
	{"POINTING_AZ_DEG", "lidar_get_PointingAzDeg", KindFloat, GroupMeasurement},
	{"POINTING_EL_DEG", "lidar_get_PointingElDeg", KindFloat, GroupMeasurement},
	{"POINTING_TARGET_AZ_DEG", "lidar_get_PointingTargetAzDeg", KindFloat, GroupMeasurement},
	{"POINTING_TARGET_EL_DEG", "lidar_get_PointingTargetElDeg", KindFloat, GroupMeasurement},
	{"POINTING_STATUS", "lidar_get_PointingStatus", KindString, GroupMeasurement},
	{"POINTING_ACCURACY_DEG", "lidar_get_PointingAccuracyDeg", KindFloat, GroupMeasurement},
	{"SCAN_MODE", "lidar_get_ScanMode", KindString, GroupMeasurement},
	{"DEVICE_STATUS", "lidar_get_DeviceStatus", KindString, GroupMeasurement},
	{"FILE_FORMAT_VERSION", "lidar_get_FileFormatVersion", KindString, GroupMeasurement},
}

// LIDAR returns the built-in attribute catalogue with addresses in the
// given namespace.
//
// Parameters:
//   - namespace: OPC UA namespace index holding the instrument nodes
//
// Returns:
//   - []Definition: One definition per telemetry node, in catalogue order
func LIDAR(namespace int) []Definition {
	defs := make([]Definition, 0, len(lidarNodes))
	for _, n := range lidarNodes {
		defs = append(defs, Definition{
			Name:    n.name,
			Address: Address(fmt.Sprintf("ns=%d;s=%s", namespace, n.identifier)),
			Kind:    n.kind,
			Group:   n.group,
		})
	}
	return defs
}
